package main

import (
	"net/http"

	"github.com/cuemby/certmgr/pkg/metrics"
)

func newMetricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

func serveHTTP(addr string, handler http.Handler) error {
	return http.ListenAndServe(addr, handler)
}
