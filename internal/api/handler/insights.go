package handler

import (
	"net/http"
	"strings"

	"github.com/fleetroute/fleetroute/internal/api/models"
	"github.com/fleetroute/fleetroute/internal/api/response"
	"github.com/fleetroute/fleetroute/internal/insights"
)

// InsightsHandler turns a previously optimized plan into narratives and
// answers. It is stateless: the client sends the plan back.
type InsightsHandler struct{}

// NewInsightsHandler creates a new InsightsHandler.
func NewInsightsHandler() *InsightsHandler {
	return &InsightsHandler{}
}

// Explain handles POST /v1/insights:explain.
func (h *InsightsHandler) Explain(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var input models.ExplainRequest
	if !response.DecodeJSON(w, r, &input) {
		return
	}
	if len(input.Vehicles) == 0 {
		response.ValidationFailed(w, r, []models.FieldError{
			{Field: "vehicles", Message: "must contain at least one vehicle"},
		})
		return
	}

	lines := insights.Explain(toInsightVehicles(input.Vehicles), toInsightBaseline(input.Baseline))

	resp := models.ExplainResponse{Insights: make([]models.Insight, 0, len(lines))}
	for _, l := range lines {
		resp.Insights = append(resp.Insights, models.Insight{Vehicle: l.Vehicle, Explanation: l.Explanation})
	}
	response.JSON(w, r, http.StatusOK, resp)
}

// Ask handles POST /v1/insights:ask.
func (h *InsightsHandler) Ask(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var input models.AskRequest
	if !response.DecodeJSON(w, r, &input) {
		return
	}
	if strings.TrimSpace(input.Question) == "" {
		response.ValidationFailed(w, r, []models.FieldError{
			{Field: "question", Message: "is required"},
		})
		return
	}

	answer := insights.Answer(input.Question, toInsightVehicles(input.Vehicles), toInsightBaseline(input.Baseline))
	response.JSON(w, r, http.StatusOK, models.AskResponse{Answer: answer})
}

func toInsightVehicles(in []models.InsightVehicle) []insights.Vehicle {
	out := make([]insights.Vehicle, 0, len(in))
	for _, v := range in {
		names := make([]string, 0, len(v.Stops))
		for _, s := range v.Stops {
			names = append(names, s.Name)
		}
		out = append(out, insights.Vehicle{
			ID:              v.ID,
			StopNames:       names,
			DistanceMeters:  v.Distance(),
			DurationSeconds: v.Duration(),
		})
	}
	return out
}

func toInsightBaseline(in *models.InsightBaseline) insights.Baseline {
	if in == nil {
		return insights.Baseline{}
	}
	return insights.Baseline{
		DistanceMeters:  in.Distance,
		DurationSeconds: in.Duration,
		FuelCost:        in.FuelCost,
		TotalCost:       in.TotalCost,
	}
}
