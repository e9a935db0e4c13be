package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"
	"followtrace-backend/services/keychain"
	"followtrace-backend/services/ledger"
	"followtrace-backend/services/scanner"
	"followtrace-backend/services/scanner/executor"
)

type Api struct {
	scanner  *scanner.Service
	ledger   ledger.Service
	keychain keychain.Service
}

func writeJson(w http.ResponseWriter, status int, body any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(body)
	if err != nil {
		slog.Warn("failed to encode response body", "err", err)
	}
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, scanner.ErrJobNotFound) {
		writeJson(w, http.StatusNotFound, errorBody{Error: err.Error()})
		return
	}

	var execErr *executor.Error
	if errors.As(err, &execErr) {
		status := http.StatusInternalServerError
		switch execErr.Kind {
		case executor.KindAdmissionDenied:
			status = http.StatusTooManyRequests
		case executor.KindAuthRequired:
			status = http.StatusUnauthorized
		}
		writeJson(w, status, errorBody{Error: execErr.Message, Kind: string(execErr.Kind)})
		return
	}

	writeJson(w, http.StatusBadRequest, errorBody{Error: err.Error()})
}

func decodeBody[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var body T
	err := json.NewDecoder(r.Body).Decode(&body)
	if err != nil {
		writeJson(w, http.StatusBadRequest, errorBody{Error: "malformed request body"})
		return body, false
	}
	return body, true
}

func (a Api) startScan(w http.ResponseWriter, r *http.Request) {
	body, ok := decodeBody[struct {
		Owner    string `json:"owner"`
		Target   string `json:"target"`
		Method   string `json:"method"`
		MaxItems int    `json:"max_items"`
	}](w, r)
	if !ok {
		return
	}

	result, err := a.scanner.StartScan(r.Context(), scanner.StartScanRequest{
		Owner:    body.Owner,
		Target:   body.Target,
		Method:   body.Method,
		MaxItems: body.MaxItems,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	status := http.StatusAccepted
	if !result.Accepted {
		// the caller landed on a job that was already live
		status = http.StatusOK
	}
	writeJson(w, status, map[string]any{
		"job_id":   result.JobID,
		"accepted": result.Accepted,
	})
}

func (a Api) getScan(w http.ResponseWriter, r *http.Request) {
	job, err := a.scanner.GetStatus(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJson(w, http.StatusOK, job)
}

func (a Api) listScans(w http.ResponseWriter, r *http.Request) {
	jobs, err := a.scanner.ListJobs(r.Context(), r.URL.Query().Get("owner"), 0)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJson(w, http.StatusOK, jobs)
}

func (a Api) listFollowers(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	followers, err := a.scanner.Followers(r.Context(), query.Get("owner"), query.Get("target"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJson(w, http.StatusOK, followers)
}

func (a Api) listEvents(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	events, err := a.scanner.Events(r.Context(), query.Get("owner"), query.Get("target"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJson(w, http.StatusOK, events)
}

func (a Api) verifyUsernames(w http.ResponseWriter, r *http.Request) {
	body, ok := decodeBody[struct {
		Owner     string   `json:"owner"`
		Usernames []string `json:"usernames"`
	}](w, r)
	if !ok {
		return
	}

	results, err := a.scanner.VerifyUsernames(r.Context(), body.Owner, body.Usernames)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJson(w, http.StatusOK, results)
}

func (a Api) putCredentials(w http.ResponseWriter, r *http.Request) {
	body, ok := decodeBody[struct {
		Owner         string `json:"owner"`
		AccessToken   string `json:"access_token"`
		SessionCookie string `json:"session_cookie"`
		ExpiresAt     int64  `json:"expires_at"`
	}](w, r)
	if !ok {
		return
	}

	creds := keychain.Credentials{
		AccessToken:   body.AccessToken,
		SessionCookie: body.SessionCookie,
	}
	if body.ExpiresAt != 0 {
		creds.ExpiresAt = time.Unix(body.ExpiresAt, 0)
	}
	err := a.keychain.Set(r.Context(), body.Owner, creds)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJson(w, http.StatusOK, map[string]bool{"ok": true})
}

func (a Api) putQuota(w http.ResponseWriter, r *http.Request) {
	body, ok := decodeBody[struct {
		Owner string `json:"owner"`
		Kind  string `json:"kind"`
		Quota int64  `json:"quota"`
	}](w, r)
	if !ok {
		return
	}

	err := a.ledger.SetQuota(r.Context(), body.Owner, body.Kind, body.Quota)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJson(w, http.StatusOK, map[string]bool{"ok": true})
}

func (a Api) getUsage(w http.ResponseWriter, r *http.Request) {
	usage, err := a.ledger.GetUsage(
		r.Context(), r.URL.Query().Get("owner"), ledger.KindExtractedProfiles)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJson(w, http.StatusOK, usage)
}

func (a Api) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/scans", a.startScan)
	mux.HandleFunc("GET /api/scans", a.listScans)
	mux.HandleFunc("GET /api/scans/{id}", a.getScan)
	mux.HandleFunc("GET /api/followers", a.listFollowers)
	mux.HandleFunc("GET /api/events", a.listEvents)
	mux.HandleFunc("POST /api/verify", a.verifyUsernames)
	mux.HandleFunc("PUT /api/credentials", a.putCredentials)
	mux.HandleFunc("PUT /api/quota", a.putQuota)
	mux.HandleFunc("GET /api/usage", a.getUsage)
}
