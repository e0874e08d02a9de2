// Command xmlmill manages xmlmill profiles and queries them from the
// command line.
package main

import (
	"context"
	"encoding/json"
	goflag "flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	flag "github.com/spf13/pflag"

	"github.com/williamhallatt/xmlmill/message"
	"github.com/williamhallatt/xmlmill/schema"
	"github.com/williamhallatt/xmlmill/session"
	"github.com/williamhallatt/xmlmill/xmldoc"
)

const usage = `usage: xmlmill [flags] <command> [args]

Profile commands:
  profiles                   list registered profiles (* marks the active one)
  add NAME LOCATION          register a profile stored at LOCATION
  remove NAME                unregister a profile
  use NAME                   make NAME the active profile

Document commands:
  import FILE...             teach the active profile the given documents
  check FILE...              report whether each document's root is known
  select FILE XPATH          open FILE and print the elements XPATH selects

Query commands:
  elements                   known element names
  roots                      known root elements
  attributes ELEMENT         attributes known for ELEMENT
  values ELEMENT ATTRIBUTE   values known for ELEMENT's ATTRIBUTE
  children ELEMENT           children known for ELEMENT
  dump                       the whole profile as JSON

Flags:
`

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	glog.Flush()
	os.Exit(code)
}

type options struct {
	config        string
	registry      string
	profile       string
	importUnknown bool
	indent        string
}

type command struct {
	args int // exact argument count; -1 for one or more
	// profile is set for commands that need an active profile.
	profile bool
	run     func(ctx context.Context, s *session.Session, o *options, args []string, stdout io.Writer) error
}

var commands = map[string]command{
	"profiles":   {args: 0, run: listProfiles},
	"add":        {args: 2, run: addProfile},
	"remove":     {args: 1, run: removeProfile},
	"use":        {args: 1, run: useProfile},
	"import":     {args: -1, profile: true, run: importDocuments},
	"check":      {args: -1, profile: true, run: checkDocuments},
	"select":     {args: 2, profile: true, run: selectNodes},
	"elements":   {args: 0, profile: true, run: listElements},
	"roots":      {args: 0, profile: true, run: listRoots},
	"attributes": {args: 1, profile: true, run: listAttributes},
	"values":     {args: 2, profile: true, run: listValues},
	"children":   {args: 1, profile: true, run: listChildren},
	"dump":       {args: 0, profile: true, run: dumpProfile},
}

// errUnknownRoots makes check exit non-zero without an error message.
var errUnknownRoots = errors.New("unknown document roots")

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	var o options
	fs := flag.NewFlagSet("xmlmill", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}
	fs.StringVarP(&o.config, "config", "c", "", "configuration file (JSONC)")
	fs.StringVar(&o.registry, "registry", "", "registry file, overriding the configuration")
	fs.StringVarP(&o.profile, "profile", "p", "", "profile to use instead of the last active one")
	fs.BoolVar(&o.importUnknown, "import", false, "select: accept documents with an unknown root")
	fs.StringVar(&o.indent, "indent", "  ", "select: indentation of printed elements")
	fs.AddGoFlagSet(goflag.CommandLine)

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return exitOK
		}
		return exitUsage
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return exitUsage
	}
	name, args := fs.Arg(0), fs.Args()[1:]
	cmd, ok := commands[name]
	if !ok || (cmd.args >= 0 && len(args) != cmd.args) || (cmd.args < 0 && len(args) == 0) {
		fmt.Fprintf(stderr, "xmlmill: bad command line: %s\n", strings.Join(fs.Args(), " "))
		fs.Usage()
		return exitUsage
	}

	cfg, err := session.LoadConfig(o.config)
	if err != nil {
		fmt.Fprintf(stderr, "xmlmill: %v\n", err)
		return exitError
	}
	if o.registry != "" {
		cfg.RegistryPath = o.registry
	}
	cfg.RestoreActive = cmd.profile && o.profile == ""

	s, err := session.New(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "xmlmill: %v\n", err)
		return exitError
	}
	defer s.Close()

	if cmd.profile {
		err = activate(s, o.profile)
	}
	if err == nil {
		err = cmd.run(ctx, s, &o, args, stdout)
	}
	switch {
	case err == errUnknownRoots:
		return exitError
	case err != nil:
		fmt.Fprintf(stderr, "xmlmill: %v\n", err)
		return exitError
	}
	return exitOK
}

func activate(s *session.Session, profile string) error {
	if profile != "" {
		return s.Registry.Activate(profile)
	}
	if s.Store.Active() {
		return nil
	}
	if errs := s.Errors(); len(errs) > 0 {
		return errs[0]
	}
	return errors.New("no active profile: run 'xmlmill use NAME' or pass --profile")
}

func listProfiles(_ context.Context, s *session.Session, _ *options, _ []string, stdout io.Writer) error {
	for _, c := range s.Registry.Connections() {
		mark := " "
		if c.Name == s.Registry.LastActive() {
			mark = "*"
		}
		fmt.Fprintf(stdout, "%s %s\t%s\n", mark, c.Name, c.Location)
	}
	return nil
}

func addProfile(_ context.Context, s *session.Session, _ *options, args []string, _ io.Writer) error {
	location, err := filepath.Abs(args[1])
	if err != nil {
		return err
	}
	return s.Registry.Add(args[0], location)
}

func removeProfile(_ context.Context, s *session.Session, _ *options, args []string, _ io.Writer) error {
	return s.Registry.Remove(args[0])
}

func useProfile(_ context.Context, s *session.Session, _ *options, args []string, _ io.Writer) error {
	return s.Registry.Activate(args[0])
}

func importDocuments(ctx context.Context, s *session.Session, _ *options, args []string, stdout io.Writer) error {
	var learned schema.Summary
	unsubscribe := s.Bus.Subscribe(func(e message.Event) {
		if sum, ok := e.Data.(schema.Summary); ok {
			learned = learned.Add(sum)
		}
	})
	defer unsubscribe()
	for _, path := range args {
		learned = schema.Summary{}
		if _, err := s.OpenFile(ctx, path, true); err != nil {
			return errors.Wrap(err, path)
		}
		fmt.Fprintf(stdout, "%s: %s\n", path, learned)
	}
	return nil
}

func checkDocuments(ctx context.Context, s *session.Session, _ *options, args []string, stdout io.Writer) error {
	var result error
	for _, path := range args {
		root, err := parseFile(path)
		if err != nil {
			return err
		}
		known, err := s.Query.IsKnownRoot(ctx, root.Name)
		if err != nil {
			return err
		}
		status := "known"
		if !known {
			status = "unknown"
			result = errUnknownRoots
		}
		fmt.Fprintf(stdout, "%s: %s root <%s>\n", path, status, root.Name)
	}
	return result
}

func parseFile(path string) (*xmldoc.Element, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	root, err := xmldoc.Parse(f)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	return root, nil
}

func selectNodes(ctx context.Context, s *session.Session, o *options, args []string, stdout io.Writer) error {
	if _, err := s.OpenFile(ctx, args[0], o.importUnknown); err != nil {
		return errors.Wrap(err, args[0])
	}
	ids, err := s.Document.Select(args[1])
	if err != nil {
		return err
	}
	for _, id := range ids {
		el, err := s.Document.Export(id)
		if err != nil {
			return err
		}
		if err := xmldoc.Encode(stdout, el, o.indent); err != nil {
			return err
		}
		fmt.Fprintln(stdout)
	}
	return nil
}

func printLines(stdout io.Writer, lines []string, err error) error {
	if err != nil {
		return err
	}
	for _, l := range lines {
		fmt.Fprintln(stdout, l)
	}
	return nil
}

func listElements(ctx context.Context, s *session.Session, _ *options, _ []string, stdout io.Writer) error {
	names, err := s.Query.Elements(ctx)
	return printLines(stdout, names, err)
}

func listRoots(ctx context.Context, s *session.Session, _ *options, _ []string, stdout io.Writer) error {
	names, err := s.Query.RootChoices(ctx)
	return printLines(stdout, names, err)
}

func listAttributes(ctx context.Context, s *session.Session, _ *options, args []string, stdout io.Writer) error {
	names, err := s.Query.AttributeChoices(ctx, args[0])
	return printLines(stdout, names, err)
}

func listValues(ctx context.Context, s *session.Session, _ *options, args []string, stdout io.Writer) error {
	values, err := s.Query.ValueChoices(ctx, args[0], args[1])
	return printLines(stdout, values, err)
}

func listChildren(ctx context.Context, s *session.Session, _ *options, args []string, stdout io.Writer) error {
	names, err := s.Query.ChildChoices(ctx, args[0])
	return printLines(stdout, names, err)
}

func dumpProfile(ctx context.Context, s *session.Session, _ *options, _ []string, stdout io.Writer) error {
	snap, err := s.Store.Snapshot(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}
