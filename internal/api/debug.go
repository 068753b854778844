package api

import (
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/BigPharmacist/wild-kaeee-sub002/internal/buildinfo"
)

func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
	info := map[string]any{
		"build": buildinfo.Info(),
		"time":  time.Now().UTC().Format(time.RFC3339),
		"config": map[string]any{
			"PORT":             os.Getenv("PORT"),
			"UPLOAD_DIR":       os.Getenv("UPLOAD_DIR"),
			"HAS_DATABASE_URL": os.Getenv("DATABASE_URL") != "",
			"HAS_REDIS_URL":    os.Getenv("REDIS_URL") != "",
			"HAS_GEO_API_KEY":  os.Getenv("GEO_API_KEY") != "",
		},
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(info)
}
