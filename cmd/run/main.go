// Command run executes a sandboxed wasm task against the host API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"

	"github.com/lfedgeai/spear-hostapi/guest"
	"github.com/lfedgeai/spear-hostapi/hostapi"
)

func main() {
	var (
		wasmFile = flag.String("wasm", "", "Path to task wasm file")
		funcName = flag.String("func", "task_main", "Exported function to call")
		envVars  = flag.String("env", "", "Task environment variables (KEY=VAL,KEY2=VAL2)")
		verbose  = flag.Bool("v", false, "Verbose host logging")
	)
	flag.Parse()

	if *wasmFile == "" {
		fmt.Fprintln(os.Stderr, "Usage: run -wasm <file.wasm> [-func name] [-env K=V,...]")
		os.Exit(1)
	}

	if err := run(*wasmFile, *funcName, *envVars, *verbose); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(wasmFile, funcName, envStr string, verbose bool) error {
	ctx := context.Background()

	data, err := os.ReadFile(wasmFile)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	logger := zap.NewNop()
	if verbose {
		logger, err = zap.NewDevelopment()
		if err != nil {
			return fmt.Errorf("logger: %w", err)
		}
		defer logger.Sync()
	}

	host, err := hostapi.NewHost(hostapi.Config{
		Logger: logger,
		Env:    parseEnv(envStr),
	})
	if err != nil {
		return fmt.Errorf("host: %w", err)
	}
	defer host.Close()

	r := wazero.NewRuntime(ctx)
	defer r.Close(ctx)

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, r); err != nil {
		return fmt.Errorf("wasi: %w", err)
	}
	if _, err := guest.Instantiate(ctx, r, host); err != nil {
		return fmt.Errorf("bind host api: %w", err)
	}

	mod, err := r.Instantiate(ctx, data)
	if err != nil {
		return fmt.Errorf("instantiate: %w", err)
	}
	defer mod.Close(ctx)

	fn := mod.ExportedFunction(funcName)
	if fn == nil {
		return fmt.Errorf("function %q not exported", funcName)
	}

	results, err := fn.Call(ctx)
	if err != nil {
		return fmt.Errorf("call %s: %w", funcName, err)
	}
	if len(results) > 0 {
		fmt.Printf("%s returned %d\n", funcName, int64(results[0]))
	}
	return nil
}

func parseEnv(envStr string) map[string]string {
	env := make(map[string]string)
	if envStr == "" {
		return env
	}
	for _, pair := range strings.Split(envStr, ",") {
		k, v, ok := strings.Cut(pair, "=")
		if ok {
			env[k] = v
		}
	}
	return env
}
