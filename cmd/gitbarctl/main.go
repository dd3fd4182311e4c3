// gitbarctl is a small control CLI for a running gitbar daemon. It talks to
// the daemon's local HTTP API, which keeps the menubar frontend and the CLI
// on the same surface.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/spf13/pflag"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var addr string
	var complete bool

	flagSet := pflag.NewFlagSet("gitbarctl", pflag.ContinueOnError)
	flagSet.StringVar(&addr, "addr", "http://127.0.0.1:8743", "base URL of the gitbar daemon")
	flagSet.BoolVar(&complete, "complete", false, "snapshot: include muted PRs and cleared notifications")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return nil
		}
		return err
	}

	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}

	args := flagSet.Args()
	if len(args) == 0 {
		printHelp(flagSet)
		return fmt.Errorf("a command is required")
	}

	client := &apiClient{
		base: addr,
		http: &http.Client{Timeout: 5 * time.Minute},
	}

	switch command := args[0]; command {
	case "snapshot":
		path := "/api/v1/snapshot"
		if complete {
			path += "?complete=true"
		}
		return client.printGet(path)

	case "muted":
		return client.printGet("/api/v1/prs/muted")

	case "mute", "unmute":
		id, err := idArg(args, command)
		if err != nil {
			return err
		}
		return client.do(http.MethodPost, fmt.Sprintf("/api/v1/prs/%d/%s", id, command), nil)

	case "clear":
		id, err := idArg(args, command)
		if err != nil {
			return err
		}
		return client.do(http.MethodPost, fmt.Sprintf("/api/v1/notifications/%d/clear", id), nil)

	case "clear-all":
		return client.do(http.MethodPost, "/api/v1/notifications/clear", nil)

	case "refresh":
		return client.printDo(http.MethodPost, "/api/v1/refresh", nil)

	case "set":
		if len(args) != 3 {
			return fmt.Errorf("usage: gitbarctl set <key> <value>")
		}
		body, _ := json.Marshal(map[string]string{"value": args[2]})
		return client.do(http.MethodPut, "/api/v1/settings/"+args[1], body)

	case "health":
		return client.printGet("/api/v1/health")

	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func idArg(args []string, command string) (int64, error) {
	if len(args) != 2 {
		return 0, fmt.Errorf("usage: gitbarctl %s <id>", command)
	}
	id, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q", args[1])
	}
	return id, nil
}

type apiClient struct {
	base string
	http *http.Client
}

// request performs the call and returns the response body, turning non-2xx
// statuses into errors using the daemon's JSON error body when present.
func (c *apiClient) request(method, path string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequest(method, c.base+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("is the gitbar daemon running at %s? %w", c.base, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return nil, fmt.Errorf("%s (%s)", apiErr.Error, resp.Status)
		}
		return nil, fmt.Errorf("unexpected response %s", resp.Status)
	}

	return data, nil
}

func (c *apiClient) do(method, path string, body []byte) error {
	_, err := c.request(method, path, body)
	if err == nil {
		fmt.Println("ok")
	}
	return err
}

func (c *apiClient) printDo(method, path string, body []byte) error {
	data, err := c.request(method, path, body)
	if err != nil {
		return err
	}
	return printJSON(data)
}

func (c *apiClient) printGet(path string) error {
	return c.printDo(http.MethodGet, path, nil)
}

func printJSON(data []byte) error {
	var out bytes.Buffer
	if err := json.Indent(&out, data, "", "  "); err != nil {
		fmt.Println(string(data))
		return nil
	}
	fmt.Println(out.String())
	return nil
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `gitbarctl controls a running gitbar daemon over its local HTTP API.

Usage:
  gitbarctl [flags] <command> [args]

Commands:
  snapshot          print the current filtered state (--complete for everything)
  muted             list muted pull requests
  mute <id>         mute a pull request
  unmute <id>       unmute a pull request
  clear <id>        clear a notification
  clear-all         clear all notifications
  refresh           run a refresh cycle now
  set <key> <value> update a setting (mentions_only, team_mentions,
                    notifications_enabled, collapsed)
  health            print daemon health

Flags:
`)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}
