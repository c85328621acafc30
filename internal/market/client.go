package market

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lagrangedao/go-compute-market/constants"
	"github.com/lagrangedao/go-compute-market/internal/ledger"
	"github.com/lagrangedao/go-compute-market/internal/models"
	"github.com/lagrangedao/go-compute-market/util"
	"golang.org/x/xerrors"
)

// Signer produces hex encoded signatures for an address, e.g. a LocalWallet.
type Signer interface {
	WalletSign(ctx context.Context, addr string, msg []byte) (string, error)
}

// Client calls a market node. Mutating calls are made as caller and signed
// with signer when one is given.
type Client struct {
	baseURL string
	caller  string
	signer  Signer
	http    *http.Client
	now     func() time.Time
}

func NewClient(baseURL, caller string, signer Signer) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		caller:  caller,
		signer:  signer,
		http:    &http.Client{Timeout: 30 * time.Second},
		now:     time.Now,
	}
}

func (c *Client) RegisterProvider(ctx context.Context, resources, pricePerUnit uint64) error {
	return c.do(ctx, http.MethodPost, "/providers", nil, models.ProviderReq{Resources: resources, PricePerUnit: pricePerUnit}, nil)
}

func (c *Client) UpdateProvider(ctx context.Context, resources, pricePerUnit uint64) error {
	return c.do(ctx, http.MethodPut, "/providers", nil, models.ProviderReq{Resources: resources, PricePerUnit: pricePerUnit}, nil)
}

func (c *Client) GetProvider(ctx context.Context, address string) (ledger.Provider, error) {
	var p ledger.Provider
	err := c.do(ctx, http.MethodGet, "/providers/"+url.PathEscape(address), nil, nil, &p)
	return p, err
}

func (c *Client) ListProviders(ctx context.Context) ([]ledger.Provider, error) {
	var resp models.ProviderListResp
	err := c.do(ctx, http.MethodGet, "/providers", nil, nil, &resp)
	return resp.Providers, err
}

func (c *Client) WithdrawEarnings(ctx context.Context) (uint64, error) {
	var resp models.WithdrawResp
	err := c.do(ctx, http.MethodPost, "/providers/withdraw", nil, struct{}{}, &resp)
	return resp.Amount, err
}

func (c *Client) AddFunds(ctx context.Context, amount uint64) error {
	return c.do(ctx, http.MethodPost, "/consumers/funds", nil, models.FundsReq{Amount: amount}, nil)
}

func (c *Client) GetConsumer(ctx context.Context, address string) (ledger.Consumer, error) {
	var consumer ledger.Consumer
	err := c.do(ctx, http.MethodGet, "/consumers/"+url.PathEscape(address), nil, nil, &consumer)
	return consumer, err
}

func (c *Client) RequestCompute(ctx context.Context, provider string, resources uint64) (uint64, error) {
	var resp models.JobCreatedResp
	err := c.do(ctx, http.MethodPost, "/jobs", nil, models.ComputeReq{Provider: provider, Resources: resources}, &resp)
	return resp.JobID, err
}

func (c *Client) CompleteJob(ctx context.Context, jobID uint64) error {
	return c.do(ctx, http.MethodPost, "/jobs/"+strconv.FormatUint(jobID, 10)+"/complete", nil, struct{}{}, nil)
}

func (c *Client) GetJob(ctx context.Context, jobID uint64) (ledger.Job, error) {
	var job ledger.Job
	err := c.do(ctx, http.MethodGet, "/jobs/"+strconv.FormatUint(jobID, 10), nil, nil, &job)
	return job, err
}

func (c *Client) ListJobs(ctx context.Context, filter ledger.JobFilter) ([]ledger.Job, error) {
	query := url.Values{}
	if filter.Provider != "" {
		query.Set("provider", filter.Provider)
	}
	if filter.Consumer != "" {
		query.Set("consumer", filter.Consumer)
	}
	if filter.Status != "" {
		query.Set("status", string(filter.Status))
	}
	var resp models.JobListResp
	err := c.do(ctx, http.MethodGet, "/jobs", query, nil, &resp)
	return resp.Jobs, err
}

func (c *Client) Audit(ctx context.Context) (ledger.Report, error) {
	var report ledger.Report
	err := c.do(ctx, http.MethodGet, "/audit", nil, nil, &report)
	return report, err
}

func (c *Client) HostInfo(ctx context.Context) (models.HostInfo, error) {
	var info models.HostInfo
	err := c.do(ctx, http.MethodGet, "/host/info", nil, nil, &info)
	return info, err
}

type rawResponse struct {
	util.BasicResponse
	Data json.RawMessage `json:"data,omitempty"`
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out interface{}) error {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return xerrors.Errorf("parsing url: %w", err)
	}
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var body []byte
	if in != nil {
		if body, err = json.Marshal(in); err != nil {
			return xerrors.Errorf("encoding request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if method != http.MethodGet {
		if err := c.authorize(ctx, req, u.Path, body); err != nil {
			return err
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return xerrors.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return xerrors.Errorf("reading response: %w", err)
	}
	var r rawResponse
	if err := json.Unmarshal(data, &r); err != nil {
		return xerrors.Errorf("%s %s: unexpected response (status %d): %w", method, path, resp.StatusCode, err)
	}
	if !r.Succeeded() {
		if sentinel := ledger.ErrorByCode(r.Code); sentinel != nil {
			return xerrors.Errorf("%s %s: %w", method, path, sentinel)
		}
		return fmt.Errorf("%s %s: %s (code %d)", method, path, r.Message, r.Code)
	}
	if out != nil && len(r.Data) > 0 {
		if err := json.Unmarshal(r.Data, out); err != nil {
			return xerrors.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

func (c *Client) authorize(ctx context.Context, req *http.Request, path string, body []byte) error {
	if c.caller == "" {
		return xerrors.New("no caller address configured")
	}
	req.Header.Set(constants.HEADER_ADDRESS, c.caller)
	if c.signer == nil {
		return nil
	}

	timestamp := strconv.FormatInt(c.now().Unix(), 10)
	nonce := uuid.NewString()
	sig, err := c.signer.WalletSign(ctx, c.caller, SigningMessage(req.Method, path, timestamp, nonce, body))
	if err != nil {
		return xerrors.Errorf("signing request: %w", err)
	}
	req.Header.Set(constants.HEADER_TIMESTAMP, timestamp)
	req.Header.Set(constants.HEADER_NONCE, nonce)
	req.Header.Set(constants.HEADER_SIGNATURE, sig)
	return nil
}
