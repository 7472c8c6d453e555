// Command weather is the terminal client: a one-shot lookup with -city, or an
// interactive loop reading "city[,units]" lines.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-lookup-service/internal/app"
	"github.com/kjstillabower/weather-lookup-service/internal/config"
	"github.com/kjstillabower/weather-lookup-service/internal/observability"
	"github.com/kjstillabower/weather-lookup-service/internal/presenter"
	"github.com/kjstillabower/weather-lookup-service/internal/units"
)

func main() {
	city := flag.String("city", "", "city to look up; omit for interactive mode")
	unitFlag := flag.String("units", "", "metric or imperial (default from config)")
	flag.Parse()

	logger, err := observability.NewConsoleLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	pipeline, err := app.Build(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "lookup pipeline: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctl := presenter.NewController(pipeline.Service, presenter.NewPanel(), logger)
	defaultUnits := cfg.DefaultUnits
	if *unitFlag != "" {
		defaultUnits = *unitFlag
	}

	if strings.TrimSpace(*city) != "" {
		if !runOnce(ctx, ctl, os.Stdout, *city, defaultUnits) {
			os.Exit(1)
		}
		return
	}
	if err := interactive(ctx, ctl, pipeline.Units, os.Stdin, os.Stdout, defaultUnits); err != nil {
		logger.Error("interactive loop", zap.Error(err))
		os.Exit(1)
	}
}

// runOnce performs one lookup, prints the panel and reports success.
func runOnce(ctx context.Context, ctl *presenter.Controller, out io.Writer, city, unitSystem string) bool {
	ch, err := ctl.Submit(ctx, city, unitSystem)
	if err != nil {
		fmt.Fprintln(out, err)
		return false
	}
	fmt.Fprintln(out, presenter.StatusLoading)
	res := <-ch
	printPanel(out, ctl.Panel().View())
	return res.OK()
}

func interactive(ctx context.Context, ctl *presenter.Controller, table units.Table, in io.Reader, out io.Writer, defaultUnits string) error {
	fmt.Fprintln(out, `Enter "city[,units]" (blank line or "quit" to exit).`)
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line == "quit" || line == "exit" {
			return nil
		}
		city, unitSystem := parseLine(table, line, defaultUnits)
		runOnce(ctx, ctl, out, city, unitSystem)
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil
		}
	}
}

// parseLine splits "city[,units]". The text after the last comma is taken as the
// unit system only when it names one, so "Paris, FR" stays a city.
func parseLine(table units.Table, line, defaultUnits string) (city, unitSystem string) {
	i := strings.LastIndex(line, ",")
	if i < 0 {
		return line, defaultUnits
	}
	if system, ok := table.Parse(line[i+1:]); ok {
		return strings.TrimSpace(line[:i]), string(system)
	}
	return line, defaultUnits
}

func printPanel(out io.Writer, v presenter.View) {
	if v.Error != "" {
		fmt.Fprintf(out, "Error: %s\n", v.Error)
		return
	}
	fmt.Fprintln(out, v.Title)
	fmt.Fprintln(out, v.Temperature)
	fmt.Fprintln(out, v.Wind)
}
