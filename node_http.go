package raftchaos

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cockroachdb/errors"
)

// HTTPNode reaches a cluster member over its JSON/HTTP client and
// management endpoints.
type HTTPNode struct {
	id       string
	clientIn string
	mgmtIn   string
	client   *http.Client
}

var _ NodeHandle = (*HTTPNode)(nil)

// NewHTTPNode creates a handle for the member with the given id. The
// addresses are "host:port"; timeout bounds every single round-trip.
func NewHTTPNode(id, clientAddr, mgmtAddr string, timeout time.Duration) *HTTPNode {
	return &HTTPNode{
		id:       id,
		clientIn: "http://" + clientAddr,
		mgmtIn:   "http://" + mgmtAddr,
		client:   &http.Client{Timeout: timeout},
	}
}

func (n *HTTPNode) ID() string { return n.id }

type setRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type setResponse struct {
	Success bool `json:"success"`
}

type getResponse struct {
	Value *string `json:"value"`
}

type termResponse struct {
	Term uint64 `json:"term"`
}

func (n *HTTPNode) Set(ctx context.Context, key, value string) (bool, error) {
	var resp setResponse
	err := n.post(ctx, n.clientIn+"/set", setRequest{Key: key, Value: value}, &resp)
	if err != nil {
		return false, err
	}
	return resp.Success, nil
}

func (n *HTTPNode) Get(ctx context.Context, key string) (string, error) {
	u := n.clientIn + "/get?key=" + url.QueryEscape(key)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	res, err := n.client.Do(req)
	if err != nil {
		return "", errors.Mark(errors.Wrapf(err, "node %s: get", n.id), ErrNetwork)
	}
	defer res.Body.Close()
	var resp getResponse
	if err := decodeBody(res, &resp); err != nil {
		return "", errors.Wrapf(err, "node %s: get", n.id)
	}
	// An absent key is reported as a null value, normalize to "".
	if resp.Value == nil {
		return "", nil
	}
	return *resp.Value, nil
}

func (n *HTTPNode) CurrentTerm(ctx context.Context) (uint64, error) {
	u := n.mgmtIn + "/term"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, err
	}
	res, err := n.client.Do(req)
	if err != nil {
		return 0, errors.Mark(errors.Wrapf(err, "node %s: term", n.id), ErrNetwork)
	}
	defer res.Body.Close()
	var resp termResponse
	if err := decodeBody(res, &resp); err != nil {
		return 0, errors.Wrapf(err, "node %s: term", n.id)
	}
	return resp.Term, nil
}

func (n *HTTPNode) Isolate(ctx context.Context) error {
	return n.post(ctx, n.mgmtIn+"/isolate", struct{}{}, nil)
}

func (n *HTTPNode) PartitionFrom(ctx context.Context, peers []string) error {
	body := struct {
		Peers []string `json:"peers"`
	}{Peers: peers}
	return n.post(ctx, n.mgmtIn+"/partition", body, nil)
}

func (n *HTTPNode) Heal(ctx context.Context) error {
	return n.post(ctx, n.mgmtIn+"/heal", struct{}{}, nil)
}

func (n *HTTPNode) SetLatency(ctx context.Context, d time.Duration) error {
	body := struct {
		DelaySeconds float64 `json:"delay_seconds"`
	}{DelaySeconds: d.Seconds()}
	return n.post(ctx, n.mgmtIn+"/latency", body, nil)
}

func (n *HTTPNode) SetPacketLoss(ctx context.Context, probability float64) error {
	if probability < 0 || probability > 1 {
		return errors.Newf("packet loss probability %f outside [0, 1]", probability)
	}
	body := struct {
		Probability float64 `json:"probability"`
	}{Probability: probability}
	return n.post(ctx, n.mgmtIn+"/packet_loss", body, nil)
}

func (n *HTTPNode) SetReordering(ctx context.Context, enabled bool) error {
	body := struct {
		Enabled bool `json:"enabled"`
	}{Enabled: enabled}
	return n.post(ctx, n.mgmtIn+"/reordering", body, nil)
}

func (n *HTTPNode) post(ctx context.Context, u string, body interface{}, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return errors.Wrapf(err, "node %s: marshal request", n.id)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewBuffer(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := n.client.Do(req)
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "node %s: post %s", n.id, u), ErrNetwork)
	}
	defer res.Body.Close()
	if out == nil {
		_, _ = io.Copy(io.Discard, res.Body)
		if res.StatusCode >= 400 {
			return errors.Mark(
				errors.Newf("node %s: %s returned status %d", n.id, u, res.StatusCode),
				ErrNetwork)
		}
		return nil
	}
	return decodeBody(res, out)
}

func decodeBody(res *http.Response, out interface{}) error {
	if res.StatusCode >= 400 {
		_, _ = io.Copy(io.Discard, res.Body)
		return errors.Mark(errors.Newf("status %d", res.StatusCode), ErrNetwork)
	}
	data, err := io.ReadAll(res.Body)
	if err != nil {
		return errors.Mark(errors.Wrap(err, "read response"), ErrNetwork)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.Wrap(err, "parse response")
	}
	return nil
}
