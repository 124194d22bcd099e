package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/conduit-lang/restdecl/examples/posts"
	"github.com/conduit-lang/restdecl/internal/auth"
	"github.com/conduit-lang/restdecl/internal/cli/config"
	"github.com/conduit-lang/restdecl/internal/cli/ui"
	"github.com/conduit-lang/restdecl/pkg/rest"
)

var operations = []string{"list", "get", "create", "update", "delete", "upload", "feed"}

type callOptions struct {
	baseURL string
	repeat  int
	output  string
	metrics bool

	tag     string
	title   string
	body    string
	tags    []string
	caption string
}

func newCallCommand(g *globals) *cobra.Command {
	opts := &callOptions{}

	cmd := &cobra.Command{
		Use:   "call <operation> [args...]",
		Short: "Invoke the posts client",
		Long: `Invoke one operation of the declared posts client.

Operations:
  list                  list posts, filtered by --tag
  get <id>              fetch one post
  create                create a post from --title, --body and --tags
  update <id>           replace a post's content
  delete <id>           delete a post
  upload <id> <file>... upload files as attachments, with --caption
  feed                  list posts through the JSONP endpoint

--repeat runs the operation several times on one client so the effect of
the response cache is visible in the number of requests sent. --metrics
prints the client's Prometheus counters to stderr afterwards.

Examples:
  restdecl call list --tag go
  restdecl call get 1f0c... --repeat 6 --metrics
  restdecl call create --title "Hello" --tags intro,go
  restdecl call upload 1f0c... notes.md logo.png --caption release`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig(cmd)
			if err != nil {
				return err
			}
			return runCall(cmd.Context(), cmd, cfg, opts, args)
		},
	}

	cmd.Flags().StringVar(&opts.baseURL, "base-url", "", "Override the posts API base URL")
	cmd.Flags().IntVarP(&opts.repeat, "repeat", "n", 1, "Number of times to run the operation")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "table", "Output format: table, json or yaml")
	cmd.Flags().BoolVar(&opts.metrics, "metrics", false, "Print client metrics after the calls")
	cmd.Flags().StringVar(&opts.tag, "tag", "", "Tag filter for list")
	cmd.Flags().StringVar(&opts.title, "title", "", "Post title for create and update")
	cmd.Flags().StringVar(&opts.body, "body", "", "Post body for create and update")
	cmd.Flags().StringSliceVar(&opts.tags, "tags", nil, "Post tags for create and update")
	cmd.Flags().StringVar(&opts.caption, "caption", "", "Caption for upload")

	return cmd
}

func runCall(ctx context.Context, cmd *cobra.Command, cfg *config.Config, opts *callOptions, args []string) error {
	op, operands := args[0], args[1:]
	if !slices.Contains(operations, op) {
		ui.OperationNotFound(op, ui.FindSimilar(op, operations, nil), color.NoColor).Write(cmd.ErrOrStderr())
		return reportedError{fmt.Errorf("unknown operation %q", op)}
	}
	if opts.repeat < 1 {
		return fmt.Errorf("--repeat must be at least 1")
	}
	if err := checkOutput(opts.output); err != nil {
		return err
	}

	if opts.metrics {
		cfg.Metrics.Enabled = true
	}
	rt, err := config.Build(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	var sent atomic.Int64
	counting := rest.TransportFunc(func(ctx context.Context, req *rest.Request) (*rest.Response, error) {
		sent.Add(1)
		return rt.Transport.Do(ctx, req)
	})

	clientOpts := rt.Options()
	if opts.baseURL != "" {
		clientOpts = append(clientOpts, rest.WithBaseURL(posts.DefinitionName, opts.baseURL))
	}

	var issuer *auth.Issuer
	if cfg.Auth.JWTSecret != "" {
		issuer = auth.NewIssuer(cfg.Auth.JWTSecret, tokenTTL)
	}
	api := posts.New(rest.NewClient(counting, clientOpts...), issuer, "restdecl")

	var result any
	for i := 0; i < opts.repeat; i++ {
		result, err = invoke(ctx, api, op, operands, opts)
		if err != nil {
			reportCallError(cmd.ErrOrStderr(), op, err)
			return reportedError{err}
		}
	}

	if err := render(cmd.OutOrStdout(), opts.output, result); err != nil {
		return err
	}
	if opts.repeat > 1 {
		color.New(color.FgHiBlack).Fprintf(cmd.ErrOrStderr(), "%d invocations, %d requests sent\n", opts.repeat, sent.Load())
	}
	if cfg.Metrics.Enabled && rt.Registry != nil {
		return writeMetrics(cmd.ErrOrStderr(), rt.Registry, color.NoColor)
	}
	return nil
}

func invoke(ctx context.Context, api *posts.API, op string, operands []string, opts *callOptions) (any, error) {
	switch op {
	case "list":
		return api.ListPosts(ctx, opts.tag)
	case "feed":
		return api.Feed(ctx)
	case "create":
		return api.CreatePost(ctx, opts.newPost())
	}

	if len(operands) == 0 {
		return nil, fmt.Errorf("%s requires a post id", op)
	}
	id := operands[0]

	switch op {
	case "get":
		return api.GetPost(ctx, id)
	case "update":
		return api.UpdatePost(ctx, id, opts.newPost())
	case "delete":
		if err := api.DeletePost(ctx, id); err != nil {
			return nil, err
		}
		return ui.Success("deleted "+id, color.NoColor), nil
	case "upload":
		files, err := readFiles(operands[1:])
		if err != nil {
			return nil, err
		}
		return api.UploadAttachments(ctx, id, opts.caption, files...)
	}
	return nil, fmt.Errorf("unknown operation %q", op)
}

func (o *callOptions) newPost() posts.NewPost {
	return posts.NewPost{Title: o.title, Body: o.body, Tags: o.tags}
}

func readFiles(paths []string) ([]rest.File, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("upload requires at least one file")
	}
	files := make([]rest.File, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		contentType := mime.TypeByExtension(filepath.Ext(p))
		if contentType == "" {
			contentType = http.DetectContentType(data)
		}
		files = append(files, rest.File{
			Name:        filepath.Base(p),
			ContentType: contentType,
			Content:     data,
		})
	}
	return files, nil
}

func reportCallError(w io.Writer, op string, err error) {
	kind := "request"
	switch {
	case rest.IsConfiguration(err):
		kind = "configuration"
	case rest.IsAssembly(err):
		kind = "assembly"
	case rest.IsTransport(err):
		kind = "transport"
	}
	ui.RequestFailed(op, kind, err, color.NoColor).Write(w)
}

func checkOutput(format string) error {
	switch format {
	case "table", "json", "yaml":
		return nil
	}
	return fmt.Errorf("unknown output format %q (want table, json or yaml)", format)
}

// render writes v in the requested format. yaml output keeps the json
// field names.
func render(w io.Writer, format string, v any) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		var plain any
		if err := json.Unmarshal(data, &plain); err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(plain); err != nil {
			return err
		}
		return enc.Close()
	}

	noColor := color.NoColor
	switch v := v.(type) {
	case []posts.Post:
		t := ui.NewTable(w, noColor, "ID", "TITLE", "TAGS", "CREATED")
		for _, p := range v {
			t.AddRow(p.ID, p.Title, strings.Join(p.Tags, ","), p.CreatedAt.Format("2006-01-02 15:04"))
		}
		t.Render()
	case *posts.Post:
		kv := ui.NewKeyValueTable(w, noColor)
		kv.AddRow("ID", v.ID)
		kv.AddRow("Title", v.Title)
		kv.AddRow("Body", v.Body)
		kv.AddRow("Tags", strings.Join(v.Tags, ", "))
		kv.AddRow("Created", v.CreatedAt.Format("2006-01-02 15:04:05"))
		kv.Render()
	case *posts.Upload:
		kv := ui.NewKeyValueTable(w, noColor)
		kv.AddRow("Post", v.PostID)
		kv.AddRow("Caption", v.Caption)
		kv.Render()
		t := ui.NewTable(w, noColor, "FIELD", "FILE", "SIZE")
		for _, a := range v.Attachments {
			t.AddRow(a.Field, a.Filename, fmt.Sprint(a.Size))
		}
		t.Render()
	default:
		fmt.Fprintln(w, v)
	}
	return nil
}
