package server

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/onnwee/snitchvis/backend/transport"
)

type ingestMessageJSON struct {
	ID        int64     `json:"id"`
	ChannelID int64     `json:"channel_id"`
	GuildID   int64     `json:"guild_id"`
	AuthorID  int64     `json:"author_id"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// HandleIngest accepts new-message notifications pushed by the chat gateway
// and hands them to the indexing coordinator. Messages arriving before the
// coordinator is live queue behind the startup backfill and are drained in
// arrival order.
func (h *Handlers) HandleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	// The gateway authenticates with the shared transport token.
	if token := os.Getenv("TRANSPORT_TOKEN"); token != "" {
		got := r.Header.Get("Authorization")
		if subtle.ConstantTimeCompare([]byte(got), []byte("Bearer "+token)) != 1 {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}

	var body ingestMessageJSON
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if body.ID == 0 || body.ChannelID == 0 {
		http.Error(w, "id and channel_id required", http.StatusBadRequest)
		return
	}
	if body.Timestamp.IsZero() {
		body.Timestamp = time.Now()
	}

	msg := transport.Message{
		ID:        body.ID,
		ChannelID: body.ChannelID,
		GuildID:   body.GuildID,
		AuthorID:  body.AuthorID,
		Content:   body.Content,
		Timestamp: body.Timestamp,
	}
	if err := h.coord.HandleMessage(r.Context(), msg); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
