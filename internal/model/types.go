package model

import "time"

const EnvelopeVersion = "v1"

type Envelope struct {
	Version  string       `json:"version"`
	Success  bool         `json:"success"`
	Data     any          `json:"data,omitempty"`
	Error    *ErrorBody   `json:"error"`
	Warnings []string     `json:"warnings,omitempty"`
	Meta     EnvelopeMeta `json:"meta"`
}

type ErrorBody struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

type EnvelopeMeta struct {
	RequestID string           `json:"request_id"`
	Timestamp time.Time        `json:"timestamp"`
	Command   string           `json:"command"`
	Providers []ProviderStatus `json:"providers,omitempty"`
	Cache     CacheStatus      `json:"cache"`
	Partial   bool             `json:"partial"`
}

type ProviderStatus struct {
	Name      string `json:"name"`
	Status    string `json:"status"`
	LatencyMS int64  `json:"latency_ms"`
}

type CacheStatus struct {
	Status string `json:"status"`
	AgeMS  int64  `json:"age_ms"`
	Stale  bool   `json:"stale"`
}

type AmountInfo struct {
	AmountBaseUnits string `json:"amount_base_units"`
	AmountDecimal   string `json:"amount_decimal"`
	Decimals        int    `json:"decimals"`
}

type TokenView struct {
	ChainID     int64  `json:"chain_id"`
	Address     string `json:"address"`
	Symbol      string `json:"symbol"`
	Name        string `json:"name,omitempty"`
	Decimals    int    `json:"decimals"`
	LogoURI     string `json:"logo_uri,omitempty"`
	IsVerified  bool   `json:"is_verified"`
	IsShortlist bool   `json:"is_shortlist"`
	ResolvedBy  string `json:"resolved_by,omitempty"`
	AssumedMeta bool   `json:"assumed_metadata,omitempty"`
}

type QuoteView struct {
	QuoteID        string     `json:"quote_id"`
	FlowKind       string     `json:"flow_kind"`
	FromChainID    int64      `json:"from_chain_id"`
	ToChainID      int64      `json:"to_chain_id"`
	FromToken      TokenView  `json:"from_token"`
	ToToken        TokenView  `json:"to_token"`
	Input          AmountInfo `json:"input"`
	EstimatedOut   AmountInfo `json:"estimated_out"`
	MinOut         AmountInfo `json:"min_out"`
	SlippageBps    int64      `json:"slippage_bps,omitempty"`
	ApprovalTarget string     `json:"approval_target,omitempty"`
	EstimatedTimeS int64      `json:"estimated_time_s,omitempty"`
	FetchedAt      string     `json:"fetched_at"`
}

type ApprovalView struct {
	Token     string `json:"token"`
	Spender   string `json:"spender"`
	Required  string `json:"required_base_units"`
	Allowance string `json:"allowance_base_units"`
	TxHash    string `json:"tx_hash,omitempty"`
	Skipped   bool   `json:"skipped"`
}

type SwapResultView struct {
	QuoteID      string        `json:"quote_id"`
	FlowKind     string        `json:"flow_kind"`
	SettlementID string        `json:"settlement_id"`
	Approval     *ApprovalView `json:"approval,omitempty"`
	Status       string        `json:"status"`
	StatusCode   int           `json:"status_code"`
	TxHash       string        `json:"tx_hash,omitempty"`
	PollAttempts int           `json:"poll_attempts,omitempty"`
	SubmittedAt  string        `json:"submitted_at"`
	SettledAt    string        `json:"settled_at,omitempty"`
}

type SettlementStatusView struct {
	SettlementID string `json:"settlement_id"`
	Status       string `json:"status"`
	StatusCode   int    `json:"status_code"`
	Terminal     bool   `json:"terminal"`
	TxHash       string `json:"tx_hash,omitempty"`
	CheckedAt    string `json:"checked_at"`
}

type SwapRecordView struct {
	QuoteID      string `json:"quote_id"`
	FlowKind     string `json:"flow_kind"`
	FromChainID  int64  `json:"from_chain_id"`
	ToChainID    int64  `json:"to_chain_id"`
	InputAmount  string `json:"input_amount_base_units"`
	SettlementID string `json:"settlement_id,omitempty"`
	Status       string `json:"status"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}
