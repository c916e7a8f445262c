package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aimate/memorycore/internal/ucm"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the memory core as an HTTP daemon",
	Long:  `serve builds the full UnifiedContextManager pipeline and exposes it over HTTP, one POST /interact call per process_interaction.`,
	Run: func(cmd *cobra.Command, args []string) {
		runServe()
	},
}

func init() {
	serveCmd.Flags().StringVarP(&serveAddr, "addr", "a", ":8787", "listen address")
	rootCmd.AddCommand(serveCmd)
}

func runServe() {
	a, err := buildApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "memoryd: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	if fw, err := a.Watcher.Start(); err == nil {
		defer fw.Close()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if a.Lifecycle != nil {
		if err := a.Lifecycle.Start(ctx, func() string { return "" }, func(err error) {
			fmt.Fprintf(os.Stderr, "lifecycle: %v\n", err)
		}); err != nil {
			fmt.Fprintf(os.Stderr, "memoryd: lifecycle scheduler: %v\n", err)
		}
	}

	if a.Runtime.Embedder != nil && a.VecIndex != nil && a.VecQueue != nil {
		go a.VecQueue.Run(ctx, a.Runtime.Embedder, a.VecIndex, a.Store)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/interact", handleInteract(a.Runtime))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	server := &http.Server{Addr: serveAddr, Handler: mux}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		server.Shutdown(shutdownCtx)
		cancel()
	}()

	fmt.Printf("memoryd listening on %s\n", serveAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		fmt.Fprintf(os.Stderr, "memoryd: %v\n", err)
		os.Exit(1)
	}
}

// wireInteractionRequest is /interact's wire shape; Source/Payload map
// straight onto ucm.InteractionRequest.
type wireInteractionRequest struct {
	RequestID string         `json:"request_id"`
	Source    string         `json:"source"`
	EventType string         `json:"event_type"`
	Payload   map[string]any `json:"payload"`
	TraceID   string         `json:"trace_id"`
}

// wireInteractionResponse is /interact's wire shape; ucm.InteractionResponse
// itself keeps Err as an error, which encoding/json can't render usefully.
type wireInteractionResponse struct {
	RequestID    string         `json:"request_id"`
	Success      bool           `json:"success"`
	ResponseText string         `json:"response_text"`
	Emotion      ucm.EmotionTag `json:"emotion"`
	StateChanges map[string]any `json:"state_changes"`
	TraceSpans   []string       `json:"trace_spans"`
	Error        string         `json:"error,omitempty"`
}

func toWireResponse(resp ucm.InteractionResponse) wireInteractionResponse {
	w := wireInteractionResponse{
		RequestID:    resp.RequestID,
		Success:      resp.Success,
		ResponseText: resp.ResponseText,
		Emotion:      resp.Emotion,
		StateChanges: resp.StateChanges,
		TraceSpans:   resp.TraceSpans,
	}
	if resp.Err != nil {
		w.Error = resp.Err.Error()
	}
	return w
}

func handleInteract(rt *ucm.Runtime) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var wr wireInteractionRequest
		if err := json.NewDecoder(r.Body).Decode(&wr); err != nil {
			http.Error(w, fmt.Sprintf("bad request: %v", err), http.StatusBadRequest)
			return
		}

		resp := rt.ProcessInteraction(r.Context(), ucm.InteractionRequest{
			RequestID: wr.RequestID,
			Source:    ucm.InteractionSource(wr.Source),
			EventType: wr.EventType,
			Timestamp: time.Now().UnixMilli(),
			Payload:   wr.Payload,
			TraceID:   wr.TraceID,
		})

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(toWireResponse(resp))
	}
}
