package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"cryocare-backend/internal/core/cryocare"

	"github.com/caarlos0/env/v11"
	"github.com/schollz/progressbar/v3"
)

func main() {
	var (
		version  = flag.String("version", "", "cryoCARE version to install, defaults to the latest known release")
		execute  = flag.Bool("exec", false, "run the install commands instead of printing the install script")
		dir      = flag.String("dir", ".", "directory the install commands run in")
		listOnly = flag.Bool("list", false, "list the known cryoCARE versions")
	)
	flag.Parse()

	if *listOnly {
		for _, v := range cryocare.Versions() {
			if v == cryocare.DefaultVersion() {
				fmt.Printf("%s (default)\n", v)
			} else {
				fmt.Println(v)
			}
		}
		return
	}

	var cfg cryocare.EnvConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}
	if *version != "" {
		cfg.Version = *version
	}

	cryoEnv, err := cryocare.NewEnvironment(cfg)
	if err != nil {
		log.Fatalf("invalid cryoCARE environment: %v", err)
	}

	if !*execute {
		fmt.Println(cryoEnv.InstallScript())
		return
	}

	for _, dep := range cryoEnv.Dependencies() {
		if _, err := exec.LookPath(dep); err != nil {
			log.Fatalf("%s is required to install cryoCARE: %v", dep, err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	steps := cryoEnv.InstallSteps()
	bar := progressbar.NewOptions(len(steps),
		progressbar.OptionSetDescription("installing "+cryoEnv.Recipe().EnvName()),
		progressbar.OptionSetWidth(30),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWriter(os.Stderr),
	)

	for _, step := range steps {
		cmd := exec.CommandContext(ctx, "bash", "-c", step)
		cmd.Dir = *dir
		cmd.Env = cryoEnv.Environ(os.Environ())
		if out, err := cmd.CombinedOutput(); err != nil {
			_ = bar.Exit()
			log.Fatalf("install step failed: %s: %v\n%s", step, err, out)
		}
		_ = bar.Add(1)
	}
	_ = bar.Finish()

	fmt.Fprintf(os.Stderr, "\n%s installed\n", cryoEnv.Recipe().EnvName())
}
