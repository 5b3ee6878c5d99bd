package main

import (
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"strings"
)

type commitRequest struct {
	Statements []struct {
		Statement  string         `json:"statement"`
		Parameters map[string]any `json:"parameters"`
	} `json:"statements"`
}

type commitError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type commitResponse struct {
	Results []any         `json:"results"`
	Errors  []commitError `json:"errors"`
}

func main() {
	var (
		port    = flag.String("port", "7474", "port to listen on")
		logReqs = flag.Bool("log", false, "log received statements")
		fail    = flag.Bool("fail", false, "answer every commit with a statement error")
	)
	flag.Parse()

	mux := http.NewServeMux()
	mux.HandleFunc("/db/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || !strings.HasSuffix(r.URL.Path, "/tx/commit") {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}

		var req commitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if *logReqs {
			for _, st := range req.Statements {
				log.Printf("%s %v", strings.Join(strings.Fields(st.Statement), " "), st.Parameters)
			}
		}

		resp := commitResponse{Results: []any{}, Errors: []commitError{}}
		if *fail {
			resp.Errors = append(resp.Errors, commitError{
				Code:    "Neo.ClientError.Statement.SyntaxError",
				Message: "mock failure",
			})
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})

	addr := ":" + *port
	log.Printf("mock graph endpoint listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
