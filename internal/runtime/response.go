package runtime

import (
	"encoding/json"

	"github.com/catherinevee/custodianhub/internal/engine"
	"github.com/catherinevee/custodianhub/internal/notify"
)

// Response is the handler's exit contract. Body is JSON so API-style hosts
// and direct invokers read the same shape.
type Response struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

// ResponseBody is the decoded form of Response.Body.
type ResponseBody struct {
	Success                   bool                     `json:"success"`
	AccountID                 string                   `json:"account_id"`
	Region                    string                   `json:"region"`
	EventName                 string                   `json:"event_name"`
	PoliciesExecuted          int                      `json:"policies_executed"`
	PoliciesSuccessful        int                      `json:"policies_successful"`
	PoliciesFailed            int                      `json:"policies_failed"`
	RealtimeNotificationsSent int                      `json:"realtime_notifications_sent"`
	SQSMessagesProcessed      int                      `json:"sqs_messages_processed"`
	Results                   []engine.ExecutionResult `json:"results"`
	Error                     string                   `json:"error,omitempty"`
}

func respond(statusCode int, body ResponseBody) Response {
	if body.Results == nil {
		body.Results = []engine.ExecutionResult{}
	}
	raw, err := json.Marshal(body)
	if err != nil {
		// Marshal of this struct cannot fail in practice; keep the contract
		// shape anyway.
		return Response{StatusCode: 500, Body: `{"success":false,"error":"failed to encode response"}`}
	}
	return Response{StatusCode: statusCode, Body: string(raw)}
}

func errorResponse(statusCode int, accountID, region, eventName string, err error) Response {
	return respond(statusCode, ResponseBody{
		Success:   false,
		AccountID: accountID,
		Region:    region,
		EventName: eventName,
		Error:     err.Error(),
	})
}

// successResponse builds the partial-or-complete success shape. Deadline
// skips and per-policy failures keep the 200 status; the per-policy results
// carry the detail.
func successResponse(accountID, region, eventName string, results []engine.ExecutionResult, stats notify.Stats) Response {
	successful := 0
	for _, r := range results {
		if r.Success {
			successful++
		}
	}
	return respond(200, ResponseBody{
		Success:                   successful == len(results),
		AccountID:                 accountID,
		Region:                    region,
		EventName:                 eventName,
		PoliciesExecuted:          len(results),
		PoliciesSuccessful:        successful,
		PoliciesFailed:            len(results) - successful,
		RealtimeNotificationsSent: stats.Published,
		SQSMessagesProcessed:      stats.Processed,
		Results:                   results,
	})
}
