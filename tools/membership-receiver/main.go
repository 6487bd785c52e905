// membership-receiver is a throwaway directory service for local testing.
// It accepts the signed group and membership writes rotationpress sends,
// keeps everything in memory, and exposes the state for inspection.
package main

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"
)

type group struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	WorkspaceID string    `json:"workspace_id"`
	Members     []string  `json:"members"`
	UpdatedAt   time.Time `json:"updated_at"`
}

var (
	mu      sync.Mutex
	groups  = make(map[string]*group) // keyed by external group ID
	byName  = make(map[string]string) // workspace/name -> external group ID
	writes  int64
	nextID  int
	secret  string
	since   time.Time
)

func main() {
	since = time.Now().UTC()
	secret = os.Getenv("SECRET")
	if secret == "" {
		log.Println("SECRET not set; signature verification disabled")
	}

	addr := ":8081"
	if v := os.Getenv("ADDR"); v != "" {
		addr = v
	}

	http.HandleFunc("/groups", groupsHandler)
	http.HandleFunc("/groups/", membersHandler)
	http.HandleFunc("/stats", statsHandler)
	http.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	http.HandleFunc("/reset", func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		groups = make(map[string]*group)
		byName = make(map[string]string)
		writes = 0
		nextID = 0
		since = time.Now().UTC()
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "reset")
	})

	log.Printf("membership-receiver listening on %s", addr)
	log.Fatal(http.ListenAndServe(addr, nil))
}

// readSigned reads the body and rejects the request when a secret is
// configured and the signature does not match.
func readSigned(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, _ := io.ReadAll(r.Body)
	defer r.Body.Close()

	if secret != "" {
		sig := r.Header.Get("X-RotationPress-Signature")
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write(body)
		expected := hex.EncodeToString(mac.Sum(nil))
		if !hmac.Equal([]byte(expected), []byte(sig)) {
			log.Printf("rejected %s %s: bad signature", r.Method, r.URL.Path)
			http.Error(w, `{"error":"invalid signature"}`, http.StatusUnauthorized)
			return nil, false
		}
	}
	return body, true
}

func groupsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}
	body, ok := readSigned(w, r)
	if !ok {
		return
	}

	var req struct {
		Name        string `json:"name"`
		WorkspaceID string `json:"workspace_id"`
	}
	if err := json.Unmarshal(body, &req); err != nil || req.Name == "" {
		http.Error(w, `{"error":"invalid body"}`, http.StatusBadRequest)
		return
	}

	mu.Lock()
	key := req.WorkspaceID + "/" + req.Name
	id, exists := byName[key]
	if !exists {
		nextID++
		id = fmt.Sprintf("grp-%04d", nextID)
		byName[key] = id
		groups[id] = &group{
			ID:          id,
			Name:        req.Name,
			WorkspaceID: req.WorkspaceID,
			Members:     []string{},
			UpdatedAt:   time.Now().UTC(),
		}
	}
	writes++
	mu.Unlock()

	if exists {
		log.Printf("group %q already exists as %s", req.Name, id)
	} else {
		log.Printf("group %q created as %s", req.Name, id)
	}
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"group_id":%q}`, id)
}

func membersHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/groups/")
	id, found := strings.CutSuffix(rest, "/members")
	if !found || id == "" || r.Method != http.MethodPut {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		return
	}
	body, ok := readSigned(w, r)
	if !ok {
		return
	}

	var req struct {
		Members []string `json:"members"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, `{"error":"invalid body"}`, http.StatusBadRequest)
		return
	}
	if req.Members == nil {
		req.Members = []string{}
	}

	mu.Lock()
	g, exists := groups[id]
	if exists {
		g.Members = req.Members
		g.UpdatedAt = time.Now().UTC()
		writes++
	}
	mu.Unlock()

	if !exists {
		http.Error(w, `{"error":"unknown group"}`, http.StatusNotFound)
		return
	}
	log.Printf("group %s membership replaced: %v", id, req.Members)
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, `{"status":"ok"}`)
}

func statsHandler(w http.ResponseWriter, _ *http.Request) {
	mu.Lock()
	out := struct {
		Writes int64             `json:"writes"`
		Groups map[string]*group `json:"groups"`
		Since  string            `json:"since"`
	}{
		Writes: writes,
		Groups: groups,
		Since:  since.Format(time.RFC3339),
	}
	data, _ := json.Marshal(out)
	mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}
