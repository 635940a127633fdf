package main

import (
	"bufio"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/guonaihong/gout"
	"github.com/guonaihong/gout/dataflow"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	addrFlag = flag.String("addr", "http://127.0.0.1:8821", "walinkd API address")
	jsonFlag = flag.Bool("json", false, "output in JSON format")
)

func main() {
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	switch args[0] {
	case "list":
		owner := ""
		if len(args) >= 2 {
			owner = args[1]
		}
		cmdList(owner)
	case "create":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: walinkctl create <owner>")
			os.Exit(1)
		}
		cmdCreate(args[1])
	case "delete":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: walinkctl delete <instance-id>")
			os.Exit(1)
		}
		cmdDelete(args[1])
	case "sync":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: walinkctl sync <instance-id>")
			os.Exit(1)
		}
		cmdSync(args[1])
	case "sync-all":
		cmdSyncAll()
	case "watch":
		cmdWatch()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: walinkctl [--addr <url>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  list [owner]          List instances")
	fmt.Fprintln(os.Stderr, "  create <owner>        Create an instance for an account")
	fmt.Fprintln(os.Stderr, "  delete <instance-id>  Delete an instance and its remote session")
	fmt.Fprintln(os.Stderr, "  sync <instance-id>    Reconcile one instance with the remote")
	fmt.Fprintln(os.Stderr, "  sync-all              Reconcile every instance")
	fmt.Fprintln(os.Stderr, "  watch                 Stream lifecycle events")
}

type apiResponse struct {
	Code int                 `json:"code"`
	Data jsoniter.RawMessage `json:"data"`
	Err  string              `json:"error"`
	Msg  string              `json:"message"`
}

func call(method, path string, payload any) jsoniter.RawMessage {
	var body apiResponse
	var code int
	url := *addrFlag + path

	var df *dataflow.DataFlow
	switch method {
	case http.MethodPost:
		df = gout.POST(url)
	case http.MethodDelete:
		df = gout.DELETE(url)
	default:
		df = gout.GET(url)
	}
	if payload != nil {
		df = df.SetJSON(payload)
	}
	err := df.SetTimeout(15 * time.Second).BindJSON(&body).Code(&code).Do()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot reach daemon at %s: %v\n", *addrFlag, err)
		os.Exit(1)
	}
	if code != http.StatusOK {
		msg := body.Msg
		if msg == "" {
			msg = body.Err
		}
		fmt.Fprintf(os.Stderr, "error: %s (%d)\n", msg, code)
		os.Exit(1)
	}
	return body.Data
}

type instanceView struct {
	ID              string `json:"id"`
	Owner           string `json:"owner"`
	Name            string `json:"name"`
	ConnectionState string `json:"connectionState"`
	Phone           string `json:"phone"`
}

func cmdList(owner string) {
	path := "/api/instances"
	if owner != "" {
		path += "?owner=" + owner
	}
	data := call(http.MethodGet, path, nil)
	if *jsonFlag {
		outputRaw(data)
		return
	}
	var instances []instanceView
	if err := json.Unmarshal(data, &instances); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if len(instances) == 0 {
		fmt.Println("no instances")
		return
	}
	for _, inst := range instances {
		fmt.Printf("%-36s  %-20s  %-14s  %s\n", inst.ID, inst.Name, inst.ConnectionState, inst.Phone)
	}
}

func cmdCreate(owner string) {
	data := call(http.MethodPost, "/api/instances", map[string]string{"owner": owner})
	if *jsonFlag {
		outputRaw(data)
		return
	}
	var inst instanceView
	if err := json.Unmarshal(data, &inst); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("created %s (%s), state %s\n", inst.Name, inst.ID, inst.ConnectionState)
}

func cmdDelete(id string) {
	call(http.MethodDelete, "/api/instances/"+id, nil)
	fmt.Println("deleted")
}

func cmdSync(id string) {
	data := call(http.MethodPost, "/api/instances/"+id+"/sync", nil)
	outputRaw(data)
}

func cmdSyncAll() {
	data := call(http.MethodPost, "/api/sync/all", nil)
	outputRaw(data)
}

// cmdWatch tails the SSE stream. Plain http here: the stream never ends,
// so the usual request/bind flow does not fit.
func cmdWatch() {
	resp, err := http.Get(*addrFlag + "/events")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot reach daemon at %s: %v\n", *addrFlag, err)
		os.Exit(1)
	}
	defer func() { _ = resp.Body.Close() }()

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if data, found := strings.CutPrefix(line, "data: "); found {
			fmt.Println(data)
		}
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "error: stream ended: %v\n", err)
		os.Exit(1)
	}
}

func outputRaw(data jsoniter.RawMessage) {
	var buf any
	if err := json.Unmarshal(data, &buf); err != nil {
		fmt.Println(string(data))
		return
	}
	pretty, _ := json.MarshalIndent(buf, "", "  ")
	fmt.Println(string(pretty))
}
