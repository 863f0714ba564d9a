package labtest

import (
	"net/http"
)

// Operation describes a long-running operation for AddOperation. Progress lists the progress
// reported by the initial 202 reply and by each later status poll; the last entry should be
// 100. ResultPath, if set, is an API-relative path reported as the operation's resultUrl.
type Operation struct {
	Method     string
	Path       string
	StatusPath string
	Progress   []float64
	FinalState string
	Message    string
	ResultPath string
}

// AddOperation installs an operation: Method+Path answers 202 with the first status, and GET
// StatusPath answers with each following status in turn.
func (s *Server) AddOperation(op Operation) {
	statusURL := s.URL + op.StatusPath
	status := func(i int) map[string]interface{} {
		st := map[string]interface{}{
			"url":      statusURL,
			"progress": op.Progress[i],
			"state":    "IN_PROGRESS",
			"message":  "",
		}
		if i == len(op.Progress)-1 {
			st["state"] = op.FinalState
			st["message"] = op.Message
			if op.ResultPath != "" {
				st["resultUrl"] = s.URL + op.ResultPath
			}
		}
		return st
	}

	s.Handle(op.Method, op.Path, JSONResponse(http.StatusAccepted, status(0), nil))
	if len(op.Progress) < 2 {
		return
	}
	var polls []http.Handler
	for i := 1; i < len(op.Progress); i++ {
		polls = append(polls, JSONResponse(http.StatusOK, status(i), nil))
	}
	s.HandleSequence(http.MethodGet, op.StatusPath, polls[0], polls[1:]...)
}
