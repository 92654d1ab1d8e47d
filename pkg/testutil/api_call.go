package testutil

import "time"

// APICall records a request received by the mock vendor API
type APICall struct {
	Timestamp time.Time
	Method    string
	Path      string
	Token     string
}

// FilterAPICalls filters recorded calls by method and path
func FilterAPICalls(calls []APICall, method, path string) []APICall {
	var filtered []APICall
	for _, call := range calls {
		if call.Method == method && call.Path == path {
			filtered = append(filtered, call)
		}
	}
	return filtered
}
