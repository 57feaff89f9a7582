package handlers

import (
	"net/http"
	"strconv"
	"time"

	"server/internal/domain"
	"server/internal/middleware"
)

type historyItem struct {
	ID            string        `json:"id"`
	Status        string        `json:"status"`
	CreatedAt     string        `json:"created_at"`
	ErrorMessage  string        `json:"error_message,omitempty"`
	Outputs       []outputImage `json:"outputs"`
	CostUSD       *float64      `json:"cost_usd,omitempty"`
	GarmentImages []string      `json:"garment_images"`
}

type historyResponse struct {
	Items  []historyItem `json:"items"`
	Total  int           `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// History lists the caller's generation requests newest first, each carrying
// its outputs (with signed URLs when succeeded) and recorded cost.
func (a *App) History(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.SessionIDFromContext(r.Context())
	limit := queryInt(r, "limit", 20, 1, 100)
	offset := queryInt(r, "offset", 0, 0, 1<<30)

	items, total, err := a.Generations.ListBySession(r.Context(), sessionID, limit, offset)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to list history")
		return
	}

	resp := historyResponse{Items: make([]historyItem, 0, len(items)), Total: total, Limit: limit, Offset: offset}
	for _, gen := range items {
		item := historyItem{
			ID:            gen.ID,
			Status:        string(gen.Status),
			CreatedAt:     gen.CreatedAt.UTC().Format(time.RFC3339),
			ErrorMessage:  gen.ErrorMessage,
			Outputs:       []outputImage{},
			GarmentImages: gen.GarmentKeys,
		}
		if gen.Status == domain.GenerationStatusSucceeded {
			outs, err := a.Generations.ListOutputs(r.Context(), gen.ID)
			if err != nil {
				a.error(w, http.StatusInternalServerError, "internal", "failed to load outputs")
				return
			}
			for _, out := range outs {
				url, err := a.Store.SignedDownloadURL(r.Context(), out.StorageKey, a.Cfg.OutputURLExpiry)
				if err != nil {
					a.Logger.Warn().Err(err).Str("key", out.StorageKey).Msg("api: sign output url failed")
					continue
				}
				item.Outputs = append(item.Outputs, outputImage{
					ImageURL:       url,
					VariationIndex: out.VariationIndex,
					Width:          out.Width,
					Height:         out.Height,
				})
			}
			if usage, err := a.Generations.GetUsage(r.Context(), gen.ID); err == nil {
				item.CostUSD = &usage.EstimatedUSD
			}
		}
		resp.Items = append(resp.Items, item)
	}

	a.json(w, http.StatusOK, resp)
}

func queryInt(r *http.Request, name string, def, min, max int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < min || v > max {
		return def
	}
	return v
}
