package server

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/ineyio/voicepool"
)

const defaultTotalQuota = 10000

// Login exchanges the admin password for a session token.
func (s *Server) Login(w http.ResponseWriter, r *http.Request) {
	if s.cfg.AdminPassword == "" {
		writeError(w, http.StatusForbidden, "admin access is disabled")
		return
	}

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Password == "" {
		writeError(w, http.StatusBadRequest, "password is required")
		return
	}

	if subtle.ConstantTimeCompare([]byte(req.Password), []byte(s.cfg.AdminPassword)) != 1 {
		s.logger.Warn("admin login failed", "client", clientID(r))
		select {
		case <-time.After(s.loginDelay):
		case <-r.Context().Done():
		}
		writeError(w, http.StatusUnauthorized, "incorrect password")
		return
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	token := hex.EncodeToString(buf)

	if err := s.cache.Set(r.Context(), sessionKeyPrefix+token, "admin", s.cfg.SessionTTL); err != nil {
		s.logger.Error("failed to store session", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{
		Token:     token,
		ExpiresAt: s.now().Add(s.cfg.SessionTTL).UTC().Format(time.RFC3339),
	})
}

// Logout ends the caller's session.
func (s *Server) Logout(w http.ResponseWriter, r *http.Request) {
	token, _ := bearerToken(r)
	if err := s.cache.Delete(r.Context(), sessionKeyPrefix+token); err != nil {
		s.logger.Error("failed to delete session", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListCredentials returns one page of credentials, newest first.
func (s *Server) ListCredentials(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	limit := min(queryInt(r, "limit", 10), 100)

	all, err := s.pool.Store().ListAll(r.Context())
	if err != nil {
		s.logger.Error("failed to list credentials", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	slices.Reverse(all)

	start := len(all)
	if page-1 <= len(all)/limit {
		start = min((page-1)*limit, len(all))
	}
	end := min(start+limit, len(all))

	resp := CredentialListResponse{
		Pagination: Pagination{
			Page:       page,
			Limit:      limit,
			Total:      len(all),
			TotalPages: (len(all) + limit - 1) / limit,
		},
	}
	resp.Data = make([]voicepool.CredentialSummary, 0, end-start)
	for _, c := range all[start:end] {
		resp.Data = append(resp.Data, s.pool.Summarize(c))
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateCredential adds a credential. total_quota defaults to 10000.
func (s *Server) CreateCredential(w http.ResponseWriter, r *http.Request) {
	var req CreateCredentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Label == "" || req.Secret == "" {
		writeError(w, http.StatusBadRequest, "label and secret are required")
		return
	}
	if req.TotalQuota == 0 {
		req.TotalQuota = defaultTotalQuota
	}

	c, err := s.pool.Store().Create(r.Context(), req.Label, req.Secret, req.TotalQuota)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	s.logger.Info("credential created", "credential", c)
	writeJSON(w, http.StatusCreated, s.pool.Summarize(c))
}

// UpdateCredential toggles a credential on or off.
func (s *Server) UpdateCredential(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req UpdateCredentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Active == nil {
		writeError(w, http.StatusBadRequest, "active is required")
		return
	}

	if err := s.pool.SetActive(r.Context(), id, *req.Active); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	c, err := s.pool.Store().Get(r.Context(), id)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.pool.Summarize(c))
}

// DeleteCredential removes a credential.
func (s *Server) DeleteCredential(w http.ResponseWriter, r *http.Request) {
	if err := s.pool.DeleteCredential(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SyncCredential refreshes one credential from the provider.
func (s *Server) SyncCredential(w http.ResponseWriter, r *http.Request) {
	c, err := s.pool.SyncOne(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.pool.Summarize(c))
}

// SyncAll refreshes every credential, inactive ones included, so exhausted
// credentials that were refilled come back. With active_only=true only active
// credentials are synced, through the sweeper when one is set.
func (s *Server) SyncAll(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active_only") == "true"

	var synced, failed int
	if activeOnly && s.sweeper != nil {
		res, err := s.sweeper.SweepNow(r.Context())
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, "sweep interrupted")
			return
		}
		synced, failed = res.Synced, res.Failed
	} else {
		list := s.pool.Store().ListAll
		if activeOnly {
			list = s.pool.Store().ListActive
		}
		creds, err := list(r.Context())
		if err != nil {
			s.logger.Error("failed to list credentials", "error", err)
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		ok, err := s.pool.SyncAll(r.Context(), activeOnly)
		if err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		synced, failed = len(ok), len(creds)-len(ok)
	}

	sum, err := s.pool.Summary(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, SyncAllResponse{
		Synced: synced,
		Failed: failed,
		Quota:  sum,
	})
}

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v < 1 {
		return def
	}
	return v
}
