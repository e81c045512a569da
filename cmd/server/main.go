// Command server exposes a flowDB instance over HTTP JSON and gRPC.
//
// HTTP endpoints:
//
//	POST /v1/query    {"principal": "...", "statement": "...", "params": [{"type": "...", "value": "..."}], "named": {"name": {"type": "...", "value": "..."}}}
//	POST /v1/command  same shape; statements run in one transaction
//	GET  /metrics     Prometheus exposition
//	GET  /healthz
//
// The gRPC surface mirrors the HTTP one with a JSON codec and a
// hand-registered service descriptor, so no generated stubs are needed.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	stdlog "log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"

	flowdb "github.com/SimonWaldherr/flowDB"
	"github.com/SimonWaldherr/flowDB/internal/columnar"
	"github.com/SimonWaldherr/flowDB/internal/config"
	"github.com/SimonWaldherr/flowDB/internal/diag"
	"github.com/SimonWaldherr/flowDB/internal/engine"
	"github.com/SimonWaldherr/flowDB/internal/log"
)

var (
	flagConfig  = flag.String("config", "", "YAML config file (flags override)")
	flagMode    = flag.String("mode", "", "storage mode: memory, sqlite, bolt")
	flagPath    = flag.String("path", "", "database file for persistent modes")
	flagHTTP    = flag.String("http", "", "HTTP listen address (empty uses config)")
	flagGRPC    = flag.String("grpc", "", "gRPC listen address (empty uses config)")
	flagVerbose = flag.Bool("v", false, "verbose logging")
)

// Request is the statement envelope shared by HTTP and gRPC.
type Request struct {
	Principal string               `json:"principal"`
	Statement string               `json:"statement"`
	Params    []wireValue          `json:"params,omitempty"`
	Named     map[string]wireValue `json:"named,omitempty"`
}

// wireValue is the typed tuple form of a parameter.
type wireValue struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Response carries results or a structured diagnostic.
type Response struct {
	Results  []resultSet      `json:"results,omitempty"`
	Error    *diag.Diagnostic `json:"error,omitempty"`
	Duration string           `json:"duration"`
}

type resultSet struct {
	Columns []string   `json:"columns"`
	Types   []string   `json:"types"`
	Rows    [][]string `json:"rows"`
	Count   int        `json:"count"`
}

func main() {
	flag.Parse()

	cfg, err := config.Load(*flagConfig)
	if err != nil {
		stdlog.Fatalf("config: %v", err)
	}
	if *flagMode != "" {
		cfg.Storage.Mode = *flagMode
	}
	if *flagPath != "" {
		cfg.Storage.Path = *flagPath
	}
	if *flagHTTP != "" {
		cfg.Server.HTTP = *flagHTTP
	}
	if *flagGRPC != "" {
		cfg.Server.GRPC = *flagGRPC
	}
	if *flagVerbose {
		cfg.Log.Level = "debug"
	}

	logger := log.New(log.Config{Level: cfg.Log.Level, Console: cfg.Log.Console})

	db, err := flowdb.OpenFromConfig(cfg, logger)
	if err != nil {
		stdlog.Fatalf("open database: %v", err)
	}
	defer db.Close()

	srv := &server{db: db, logger: log.Component(logger, "server")}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 2)

	var httpSrv *http.Server
	if cfg.Server.HTTP != "" {
		mux := http.NewServeMux()
		mux.HandleFunc("/v1/query", srv.handle(true))
		mux.HandleFunc("/v1/command", srv.handle(false))
		mux.Handle("/metrics", promhttp.HandlerFor(db.MetricsRegistry(), promhttp.HandlerOpts{}))
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprintf(w, `{"status":"ok","version":%d}`, db.LastCommitted())
		})
		httpSrv = &http.Server{Addr: cfg.Server.HTTP, Handler: mux}
		go func() {
			srv.logger.Info().Str("addr", cfg.Server.HTTP).Msg("http listening")
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	var grpcSrv *grpc.Server
	if cfg.Server.GRPC != "" {
		lis, err := net.Listen("tcp", cfg.Server.GRPC)
		if err != nil {
			stdlog.Fatalf("grpc listen: %v", err)
		}
		encoding.RegisterCodec(jsonCodec{})
		grpcSrv = grpc.NewServer()
		registerFlowServer(grpcSrv, srv)
		go func() {
			srv.logger.Info().Str("addr", cfg.Server.GRPC).Msg("grpc listening")
			if err := grpcSrv.Serve(lis); err != nil {
				errCh <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
		srv.logger.Info().Msg("shutting down")
	case err := <-errCh:
		srv.logger.Error().Err(err).Msg("listener failed")
	}

	if httpSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpSrv.Shutdown(shutdownCtx)
	}
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
}

type server struct {
	db     *flowdb.DB
	logger log.Logger
}

func (s *server) handle(readOnly bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST only", http.StatusMethodNotAllowed)
			return
		}
		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		resp := s.execute(r.Context(), &req, readOnly)
		w.Header().Set("Content-Type", "application/json")
		if resp.Error != nil {
			w.WriteHeader(http.StatusUnprocessableEntity)
		}
		json.NewEncoder(w).Encode(resp)
	}
}

func (s *server) execute(ctx context.Context, req *Request, readOnly bool) *Response {
	started := time.Now()
	params, err := decodeParams(req)
	if err != nil {
		return &Response{Error: diag.From(err), Duration: time.Since(started).String()}
	}

	identity := flowdb.Identity{Principal: req.Principal}
	var (
		results []flowdb.Columns
		runErr  error
	)
	if readOnly {
		results, runErr = s.db.QueryAs(ctx, identity, req.Statement, params)
	} else {
		results, runErr = s.db.CommandAs(ctx, identity, req.Statement, params)
	}
	resp := &Response{Duration: time.Since(started).String()}
	if runErr != nil {
		resp.Error = diag.From(runErr)
		s.logger.Debug().Str("code", string(resp.Error.Code)).Msg("statement failed")
		return resp
	}
	for _, cols := range results {
		resp.Results = append(resp.Results, encodeResult(cols))
	}
	return resp
}

func decodeParams(req *Request) (flowdb.Params, error) {
	var params flowdb.Params
	for i, wv := range req.Params {
		v, err := parseWireValue(wv)
		if err != nil {
			return params, fmt.Errorf("parameter $%d: %w", i+1, err)
		}
		params.Positional = append(params.Positional, v)
	}
	if len(req.Named) > 0 {
		params.Named = make(map[string]flowdb.Value, len(req.Named))
		for name, wv := range req.Named {
			v, err := parseWireValue(wv)
			if err != nil {
				return params, fmt.Errorf("parameter $%s: %w", name, err)
			}
			params.Named[name] = v
		}
	}
	return params, nil
}

// parseWireValue converts a typed tuple {type, value} into a Value:
// the value arrives in its canonical string form and is cast to the
// declared type, rejecting with a cast diagnostic on mismatch.
func parseWireValue(wv wireValue) (flowdb.Value, error) {
	t, err := columnar.ParseType(wv.Type)
	if err != nil {
		return flowdb.Value{}, err
	}
	if t == columnar.TypeUndefined {
		return columnar.Undefined, nil
	}
	return engine.CastValue(columnar.NewUtf8(wv.Value), t, engine.PolicyError)
}

func encodeResult(cols flowdb.Columns) resultSet {
	headers := cols.Headers()
	out := resultSet{Count: cols.RowCount()}
	for _, h := range headers {
		out.Columns = append(out.Columns, h.Name)
		out.Types = append(out.Types, h.Type.String())
	}
	for i := 0; i < cols.RowCount(); i++ {
		row := make([]string, len(headers))
		for j, v := range cols.Row(i) {
			row[j] = v.String()
		}
		out.Rows = append(out.Rows, row)
	}
	return out
}

// ---- gRPC plumbing: JSON codec + hand-written service descriptor ----

type jsonCodec struct{}

func (jsonCodec) Name() string                       { return "json" }
func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// FlowServer is the gRPC surface.
type FlowServer interface {
	Query(ctx context.Context, req *Request) (*Response, error)
	Command(ctx context.Context, req *Request) (*Response, error)
}

func (s *server) Query(ctx context.Context, req *Request) (*Response, error) {
	return s.execute(ctx, req, true), nil
}

func (s *server) Command(ctx context.Context, req *Request) (*Response, error) {
	return s.execute(ctx, req, false), nil
}

func registerFlowServer(gs *grpc.Server, srv FlowServer) {
	gs.RegisterService(&grpc.ServiceDesc{
		ServiceName: "flowdb.Flow",
		HandlerType: (*FlowServer)(nil),
		Methods: []grpc.MethodDesc{
			{MethodName: "Query", Handler: flowQueryHandler},
			{MethodName: "Command", Handler: flowCommandHandler},
		},
		Streams:  []grpc.StreamDesc{},
		Metadata: "flowdb/flow.json",
	}, srv)
}

func flowQueryHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(Request)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FlowServer).Query(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/flowdb.Flow/Query"}
	return interceptor(ctx, req, info, func(ctx context.Context, req any) (any, error) {
		return srv.(FlowServer).Query(ctx, req.(*Request))
	})
}

func flowCommandHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(Request)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FlowServer).Command(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/flowdb.Flow/Command"}
	return interceptor(ctx, req, info, func(ctx context.Context, req any) (any, error) {
		return srv.(FlowServer).Command(ctx, req.(*Request))
	})
}
