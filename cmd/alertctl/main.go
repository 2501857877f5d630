// alertctl runs one alert on demand against a fixtures file, the same
// way the manual "test alert" operation does, and prints the result
// code the dispatch produced.
package main

import (
	"flag"
	"fmt"
	"os"

	"vulnalert/internal/condition"
	"vulnalert/internal/dispatch"
	"vulnalert/internal/escalate"
	"vulnalert/internal/logger"
	"vulnalert/internal/mailer"
	"vulnalert/internal/render"
	"vulnalert/internal/sandbox"
	"vulnalert/internal/store"
	"vulnalert/internal/transport"
	"vulnalert/pkg/models"
)

func run(args []string) int {
	fs := flag.NewFlagSet("alertctl", flag.ContinueOnError)
	fixtures := fs.String("fixtures", "", "Fixtures YAML file with alerts and resources")
	alertID := fs.String("alert", "", "UUID of the alert to run")
	taskID := fs.String("task", "", "Optional task UUID; a throwaway task is synthesized when empty")
	user := fs.String("user", "", "Username to run the alert as")
	dataDir := fs.String("data-dir", "/var/lib/vulnalert", "Data directory holding method helpers")
	from := fs.String("from", "", "Sender address for email methods")
	verbose := fs.Bool("verbose", false, "Log debug output to the console")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if *fixtures == "" || *alertID == "" || *user == "" {
		fmt.Fprintln(os.Stderr, "alertctl: -fixtures, -alert and -user are required")
		fs.Usage()
		return 2
	}

	level := "warn"
	if *verbose {
		level = "debug"
	}
	if err := logger.Init(true, level, "", true); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		return 1
	}

	memory, err := store.LoadFixtures(*fixtures)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load fixtures: %v\n", err)
		return 1
	}
	stores := memory.Stores(store.LogAudit{})

	m := mailer.New(mailer.Config{FromAddress: *from})
	registry := transport.NewRegistry(
		transport.NewEmailHandler(m),
		transport.NewHTTPGetHandler(0),
		transport.NewSCPHandler(),
		transport.NewSendHandler(),
		transport.NewSMBHandler(),
		transport.NewSNMPHandler(),
		transport.NewSourcefireHandler(),
		transport.NewStartTaskHandler(""),
		transport.NewSyslogHandler(),
		transport.NewTippingPointHandler(""),
		transport.NewVeriniceHandler(),
		transport.NewVfireHandler(),
	)

	sb := sandbox.New(*dataDir, sandbox.PlainRunner{})
	renderer := render.Plain{Tasks: stores.Tasks}
	evaluator := condition.New(stores.Tasks, stores.Filters, stores.Counter)
	escalator := escalate.New(stores, renderer, registry, sb)
	dispatcher := dispatch.New(stores, evaluator, escalator)

	actor := models.Actor{Username: *user}
	result := dispatcher.ManageAlert(actor, *alertID, *taskID)

	fmt.Printf("result=%d\n", result.Code)
	if result.Message != "" {
		fmt.Printf("message=%s\n", result.Message)
	}
	if result.Ok() {
		return 0
	}
	return 1
}

func main() {
	os.Exit(run(os.Args[1:]))
}
