package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cryocare-backend/internal/client"
	"cryocare-backend/pkg/api"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"gopkg.in/yaml.v2"
)

const usage = `usage: cryocarectl [-url URL] <command> [flags] [request.yaml]

commands:
  plugin            show the plugin and cryoCARE environment info
  import            import tomograms, request: ImportTomogramsRequest
  prepare           prepare training data, request: PrepareTrainingDataRequest
  load-train-data   register existing training data, request: LoadTrainDataRequest
  train             train a model, request: TrainRequest
  load-model        register an existing model, request: LoadModelRequest
  predict           denoise tomograms, request: PredictRequest
  run <id>          show a run
  runs              list runs
`

type Config struct {
	URL string `env:"CRYOCARE_BACKEND_URL" envDefault:"http://localhost:3001"`
}

func readRequest[T any](path string) (T, error) {
	var req T
	data, err := os.ReadFile(path)
	if err != nil {
		return req, fmt.Errorf("error reading request file: %w", err)
	}
	if err := yaml.UnmarshalStrict(data, &req); err != nil {
		return req, fmt.Errorf("error parsing request file %s: %w", path, err)
	}
	return req, nil
}

func printJSON(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatalf("error encoding output: %v", err)
	}
	fmt.Println(string(out))
}

type submitFunc func(ctx context.Context, c *client.Client, path string) (uuid.UUID, error)

func submitter[T any](submit func(*client.Client, context.Context, T) (uuid.UUID, error)) submitFunc {
	return func(ctx context.Context, c *client.Client, path string) (uuid.UUID, error) {
		req, err := readRequest[T](path)
		if err != nil {
			return uuid.Nil, err
		}
		return submit(c, ctx, req)
	}
}

var submitters = map[string]submitFunc{
	"prepare":         submitter((*client.Client).PrepareTrainingData),
	"load-train-data": submitter((*client.Client).LoadTrainData),
	"train":           submitter((*client.Client).Train),
	"load-model":      submitter((*client.Client).LoadModel),
	"predict":         submitter((*client.Client).Predict),
}

func main() {
	log.SetFlags(0)

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	url := flag.String("url", cfg.URL, "backend url")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := client.New(*url)
	command, args := flag.Arg(0), flag.Args()[1:]

	switch command {
	case "plugin":
		info, err := c.PluginInfo(ctx)
		if err != nil {
			log.Fatal(err)
		}
		printJSON(info)

	case "import":
		path := requestPath(command, args)
		req, err := readRequest[api.ImportTomogramsRequest](path)
		if err != nil {
			log.Fatal(err)
		}
		set, err := c.ImportTomograms(ctx, req)
		if err != nil {
			log.Fatal(err)
		}
		printJSON(set)

	case "run":
		if len(args) != 1 {
			log.Fatalf("usage: cryocarectl run <run id>")
		}
		runId, err := uuid.Parse(args[0])
		if err != nil {
			log.Fatalf("invalid run id '%s': %v", args[0], err)
		}
		run, err := c.GetRun(ctx, runId)
		if err != nil {
			log.Fatal(err)
		}
		printJSON(run)

	case "runs":
		fs := flag.NewFlagSet(command, flag.ExitOnError)
		protocol := fs.String("protocol", "", "only runs of this protocol")
		status := fs.String("status", "", "only runs with this status")
		_ = fs.Parse(args)
		runs, err := c.ListRuns(ctx, api.ListRunsParams{Protocol: *protocol, Status: *status})
		if err != nil {
			log.Fatal(err)
		}
		printJSON(runs)

	default:
		submit, ok := submitters[command]
		if !ok {
			flag.Usage()
			os.Exit(2)
		}

		fs := flag.NewFlagSet(command, flag.ExitOnError)
		wait := fs.Bool("wait", false, "wait for the run to finish")
		interval := fs.Duration("interval", 5*time.Second, "polling interval with -wait")
		_ = fs.Parse(args)

		runId, err := submit(ctx, c, requestPath(command, fs.Args()))
		if err != nil {
			log.Fatal(err)
		}

		if !*wait {
			printJSON(api.SubmitRunResponse{RunId: runId})
			return
		}

		log.Printf("submitted run %s, waiting for it to finish", runId)
		run, err := c.WaitForRun(ctx, runId, *interval)
		printJSON(run)
		if err != nil {
			log.Fatal(err)
		}
	}
}

func requestPath(command string, args []string) string {
	if len(args) != 1 {
		log.Fatalf("usage: cryocarectl %s [flags] <request.yaml>", command)
	}
	return args[0]
}
