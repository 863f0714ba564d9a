package labtest

import (
	"encoding/json"
	"net/http"
)

const sessionCookie = "labsession"

// Lab describes the discovery and authentication endpoints AddLab installs. Empty version
// lists default to just "v1".
type Lab struct {
	APIVersions       []string
	ScriptAPIVersions []string
	APIKey            string
	Username          string
	Password          string
}

// AddLab installs the endpoints a client calls while connecting: the version lists, the
// username/password login that hands out the API key, and a ping that only accepts that key.
func (s *Server) AddLab(lab Lab) {
	versions := func(vs []string) http.Handler {
		if len(vs) == 0 {
			vs = []string{"v1"}
		}
		var body []map[string]string
		for _, v := range vs {
			body = append(body, map[string]string{"version": v})
		}
		return JSONResponse(http.StatusOK, body, nil)
	}
	s.Handle(http.MethodGet, "/api/versions", versions(lab.APIVersions))
	s.Handle(http.MethodGet, APIPath+"/scriptapi/versions", versions(lab.ScriptAPIVersions))

	s.Handle(http.MethodPost, APIPath+"/auth/session", http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		var creds struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(req.Body).Decode(&creds); err != nil ||
			creds.Username != lab.Username || creds.Password != lab.Password {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: "1", Path: "/"})
		w.WriteHeader(http.StatusOK)
	}))
	s.Handle(http.MethodGet, APIPath+"/auth/session/key", http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if _, err := req.Cookie(sessionCookie); err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		JSONResponse(http.StatusOK, map[string]string{"apiKey": lab.APIKey}, nil).ServeHTTP(w, req)
	}))
	s.Handle(http.MethodDelete, APIPath+"/auth/session", http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: "", Path: "/", MaxAge: -1})
		w.WriteHeader(http.StatusOK)
	}))
	s.Handle(http.MethodGet, APIPath+"/auth/ping", http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.Header.Get("X-Api-Key") != lab.APIKey {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
}
