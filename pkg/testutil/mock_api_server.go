// Package testutil provides testing utilities for the set-top box client.
// This package contains a mock of the vendor's HTTP API and helpers for
// writing integration tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// MockAPIServer simulates the vendor's OESP web API, the personalization
// service and the listing/media-group lookups
type MockAPIServer struct {
	server *httptest.Server

	mu              sync.Mutex
	username        string
	password        string
	householdID     string
	tokenSeq        int
	validToken      string
	forbidRemaining int
	brokerToken     string
	channels        []map[string]interface{}
	listings        map[string]map[string]interface{}
	mediaGroups     map[string]map[string]interface{}
	devices         []map[string]interface{}
	recordings      []map[string]interface{}
	showRecordings  map[string][]map[string]interface{}
	calls           []APICall
}

// NewMockAPIServer creates and starts a mock API accepting the given credentials
func NewMockAPIServer(username, password, householdID string) *MockAPIServer {
	s := &MockAPIServer{
		username:       username,
		password:       password,
		householdID:    householdID,
		brokerToken:    "broker-token",
		listings:       make(map[string]map[string]interface{}),
		mediaGroups:    make(map[string]map[string]interface{}),
		showRecordings: make(map[string][]map[string]interface{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /session", s.handleSession)
	mux.HandleFunc("GET /tokens/jwt", s.authenticated(s.handleToken))
	mux.HandleFunc("GET /channels", s.handleChannels)
	mux.HandleFunc("GET /listings/{id}", s.handleListing)
	mux.HandleFunc("GET /mediagroups/{id}", s.handleMediaGroup)
	mux.HandleFunc("GET /networkdvrrecordings", s.authenticated(s.handleRecordings))
	mux.HandleFunc("GET /personalization/{household}/devices", s.authenticated(s.handleDevices))

	s.server = httptest.NewServer(mux)
	return s
}

// URL returns the API root
func (s *MockAPIServer) URL() string {
	return s.server.URL
}

// PersonalizationURLFormat returns the device listing URL format (%s = household id)
func (s *MockAPIServer) PersonalizationURLFormat() string {
	return s.server.URL + "/personalization/%s/devices"
}

// Close stops the server
func (s *MockAPIServer) Close() {
	s.server.Close()
}

// ExpireToken invalidates the current OESP token so the next authenticated call gets a 403
func (s *MockAPIServer) ExpireToken() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.validToken = ""
}

// ForbidNext answers the next n authenticated calls with 403 regardless of token
func (s *MockAPIServer) ForbidNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forbidRemaining = n
}

// SetBrokerToken sets the token returned by /tokens/jwt
func (s *MockAPIServer) SetBrokerToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.brokerToken = token
}

// AddChannel adds a channel to the /channels answer
func (s *MockAPIServer) AddChannel(serviceID, title string, number int, streamImage, logoImage string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels = append(s.channels, map[string]interface{}{
		"title":         title,
		"channelNumber": number,
		"stationSchedules": []map[string]interface{}{{
			"station": map[string]interface{}{
				"serviceId": serviceID,
				"images": []map[string]interface{}{
					{"assetType": "imageStream", "url": streamImage},
					{"assetType": "station-logo-small", "url": logoImage},
				},
			},
		}},
	})
}

// ClearChannels removes all channels
func (s *MockAPIServer) ClearChannels() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels = nil
}

// SetListing registers a listing answer
func (s *MockAPIServer) SetListing(id, stationID, title, imageURL string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listings[id] = map[string]interface{}{
		"id":        id,
		"stationId": stationID,
		"program": map[string]interface{}{
			"title":  title,
			"images": []map[string]interface{}{{"assetType": "HighResPortrait", "url": imageURL}},
		},
	}
}

// SetMediaGroup registers a media-group answer
func (s *MockAPIServer) SetMediaGroup(id, title, imageURL string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mediaGroups[id] = map[string]interface{}{
		"id":     id,
		"title":  title,
		"images": []map[string]interface{}{{"assetType": "HighResLandscape", "url": imageURL}},
	}
}

// AddDevice adds a device to the personalization answer
func (s *MockAPIServer) AddDevice(deviceID, platformType, friendlyName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices = append(s.devices, map[string]interface{}{
		"deviceId":     deviceID,
		"platformType": platformType,
		"settings":     map[string]interface{}{"deviceFriendlyName": friendlyName},
	})
}

// AddRecording adds a raw entry to the network DVR recordings answer
func (s *MockAPIServer) AddRecording(recording map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordings = append(s.recordings, recording)
}

// SetShowRecordings sets the episodes answered for a show's media group id
func (s *MockAPIServer) SetShowRecordings(mediaGroupID string, recordings []map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.showRecordings[mediaGroupID] = recordings
}

// GetAPICalls returns all recorded calls
func (s *MockAPIServer) GetAPICalls() []APICall {
	s.mu.Lock()
	defer s.mu.Unlock()
	calls := make([]APICall, len(s.calls))
	copy(calls, s.calls)
	return calls
}

// ClearAPICalls clears the call history
func (s *MockAPIServer) ClearAPICalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}

func (s *MockAPIServer) record(r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, APICall{
		Timestamp: time.Now(),
		Method:    r.Method,
		Path:      r.URL.Path,
		Token:     r.Header.Get("X-OESP-Token"),
	})
}

func (s *MockAPIServer) authenticated(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		forbidden := s.forbidRemaining > 0 || s.validToken == "" || r.Header.Get("X-OESP-Token") != s.validToken
		if s.forbidRemaining > 0 {
			s.forbidRemaining--
		}
		s.mu.Unlock()

		if forbidden {
			s.record(r)
			writeJSON(w, http.StatusForbidden, []map[string]string{{"code": "sessionExpired"}})
			return
		}
		next(w, r)
	}
}

func (s *MockAPIServer) handleSession(w http.ResponseWriter, r *http.Request) {
	s.record(r)

	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, []map[string]string{{"code": "badRequest"}})
		return
	}

	s.mu.Lock()
	if req.Username != s.username || req.Password != s.password {
		s.mu.Unlock()
		writeJSON(w, http.StatusUnauthorized, []map[string]string{{"code": "invalidCredentials"}})
		return
	}
	s.tokenSeq++
	s.validToken = fmt.Sprintf("oesp-token-%d", s.tokenSeq)
	resp := map[string]interface{}{
		"customer": map[string]interface{}{
			"householdId": s.householdID,
			"locationId":  "loc-1",
		},
		"oespToken": s.validToken,
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, resp)
}

func (s *MockAPIServer) handleToken(w http.ResponseWriter, r *http.Request) {
	s.record(r)
	s.mu.Lock()
	token := s.brokerToken
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *MockAPIServer) handleChannels(w http.ResponseWriter, r *http.Request) {
	s.record(r)
	s.mu.Lock()
	channels := append([]map[string]interface{}(nil), s.channels...)
	s.mu.Unlock()
	if channels == nil {
		channels = []map[string]interface{}{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"channels": channels})
}

func (s *MockAPIServer) handleListing(w http.ResponseWriter, r *http.Request) {
	s.record(r)
	s.mu.Lock()
	listing, ok := s.listings[r.PathValue("id")]
	s.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

func (s *MockAPIServer) handleMediaGroup(w http.ResponseWriter, r *http.Request) {
	s.record(r)
	s.mu.Lock()
	group, ok := s.mediaGroups[r.PathValue("id")]
	s.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, group)
}

func (s *MockAPIServer) handleDevices(w http.ResponseWriter, r *http.Request) {
	s.record(r)
	s.mu.Lock()
	devices := append([]map[string]interface{}(nil), s.devices...)
	s.mu.Unlock()
	if devices == nil {
		devices = []map[string]interface{}{}
	}
	writeJSON(w, http.StatusOK, devices)
}

func (s *MockAPIServer) handleRecordings(w http.ResponseWriter, r *http.Request) {
	s.record(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	if show := r.URL.Query().Get("byMediaGroupIdForShow"); show != "" {
		episodes := s.showRecordings[show]
		if episodes == nil {
			episodes = []map[string]interface{}{}
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"recordings": episodes})
		return
	}

	recordings := s.recordings
	if recordings == nil {
		recordings = []map[string]interface{}{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"recordings": recordings})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
