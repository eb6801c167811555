package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/flowforge/mediaflow/internal/app"
)

func envTrue(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
}

func main() {
	a, err := app.New()
	if err != nil {
		fmt.Printf("failed to initialize app: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	runServer := envTrue("RUN_SERVER", true)

	a.Start()

	if runServer {
		fmt.Printf("server listening on %s\n", a.Cfg.HTTPAddr)
		if err := a.Run(a.Cfg.HTTPAddr); err != nil {
			a.Log.Warn("server failed", "error", err)
		}
		return
	}

	// Worker-only container: the reaper/worker-pool/enqueuer goroutines
	// started by Start keep running; block here to keep the process alive.
	select {}
}
