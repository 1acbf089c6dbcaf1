// Package train queries the external train-schedule search endpoint and
// exposes the lookup as a model-callable tool.
package train

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"

	"github.com/liangxiao/meya/backend/internal/config"
	"github.com/liangxiao/meya/backend/internal/model/train"
)

// ToolName is the callable name the model discovers the lookup under.
const ToolName = "searchTrainInfo"

const toolDescription = "根据出发地和目的地以及出发日期来查询火车或者动车信息"

// Service is a request/response adapter over the schedule search endpoint.
type Service struct {
	client  *http.Client
	baseURL string
}

// NewService creates the lookup client.
func NewService(cfg config.TrainConfig) *Service {
	return &Service{
		client:  &http.Client{Timeout: cfg.Timeout},
		baseURL: cfg.BaseURL,
	}
}

type searchEnvelope struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    *searchData `json:"data"`
}

type searchData struct {
	QueryInfo train.QueryInfo `json:"query_info"`
	Trains    []train.Info    `json:"trains"`
}

// Search looks up matching services for one origin/destination/date triple.
// Every failure mode — transport error, non-2xx status, malformed body,
// upstream error code — degrades to the deterministic empty result so the
// model can reason about absence instead of crashing the stream.
func (s *Service) Search(ctx context.Context, req train.Request) *train.QueryResult {
	endpoint, err := url.Parse(s.baseURL + "/search/train")
	if err != nil {
		log.Printf("[train] invalid base url %q: %v", s.baseURL, err)
		return emptyResult(req)
	}

	query := endpoint.Query()
	query.Set("from", req.From)
	query.Set("to", req.To)
	query.Set("date", req.Date)
	endpoint.RawQuery = query.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		log.Printf("[train] failed to build request: %v", err)
		return emptyResult(req)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	log.Printf("[train] requesting %s", endpoint)
	resp, err := s.client.Do(httpReq)
	if err != nil {
		log.Printf("[train] request failed: %v", err)
		return emptyResult(req)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("[train] unexpected status %d from %s", resp.StatusCode, endpoint)
		return emptyResult(req)
	}

	var envelope searchEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		log.Printf("[train] failed to decode response: %v", err)
		return emptyResult(req)
	}

	if envelope.Code != 0 {
		log.Printf("[train] upstream error code=%d message=%s", envelope.Code, envelope.Message)
		return emptyResult(req)
	}
	if envelope.Data == nil {
		log.Printf("[train] response missing data field")
		return emptyResult(req)
	}

	trains := envelope.Data.Trains
	if trains == nil {
		trains = []train.Info{}
	}

	return &train.QueryResult{
		QueryInfo: envelope.Data.QueryInfo,
		Trains:    trains,
	}
}

// Tool exposes Search as an invokable tool the agent registers by name.
func (s *Service) Tool() (tool.InvokableTool, error) {
	invoke := func(ctx context.Context, req *train.Request) (*train.QueryResult, error) {
		return s.Search(ctx, *req), nil
	}

	t, err := utils.InferTool(ToolName, toolDescription, invoke)
	if err != nil {
		return nil, fmt.Errorf("failed to infer train tool: %w", err)
	}
	return t, nil
}

func emptyResult(req train.Request) *train.QueryResult {
	return &train.QueryResult{
		QueryInfo: train.QueryInfo{
			FromStation: req.From,
			ToStation:   req.To,
			Date:        req.Date,
		},
		Trains: []train.Info{},
	}
}
