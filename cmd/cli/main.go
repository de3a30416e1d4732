package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"pricehub/internal/auth"
	"pricehub/internal/grpcserver"
	"pricehub/internal/ingest"
	"pricehub/internal/report"
	"pricehub/pkg/models"
)

const defaultBaseURL = "http://localhost:8080"

type tokenData struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at,omitempty"`
}

type priceListResponse struct {
	Total  int               `json:"total"`
	Limit  int               `json:"limit"`
	Offset int               `json:"offset"`
	Items  []models.PriceRow `json:"items"`
}

type runListResponse struct {
	Items   []ingest.RunResult `json:"items"`
	Running string             `json:"running"`
}

type runResponse struct {
	Run      *ingest.RunResult      `json:"run"`
	Failures []ingest.SourceFailure `json:"failures"`
}

type cli struct {
	client    *http.Client
	baseURL   string
	tokenPath string
	grpcAddr  string
	asJSON    bool
}

func main() {
	global := flag.NewFlagSet("pricehub", flag.ExitOnError)
	baseURL := global.String("api", defaultBaseURL, "API base URL")
	tokenPath := global.String("token", defaultTokenPath(), "token file path")
	grpcAddr := global.String("grpc", "", "read prices and runs over gRPC at this address instead of HTTP")
	asJSON := global.Bool("json", false, "print raw JSON instead of tables")
	if err := global.Parse(os.Args[1:]); err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	args := global.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	ctx := context.Background()
	cmd := args[0]
	sub := ""
	if len(args) > 1 {
		sub = args[1]
	}
	rest := []string{}
	if len(args) > 2 {
		rest = args[2:]
	}

	c := &cli{
		client:    &http.Client{Timeout: 15 * time.Second},
		baseURL:   strings.TrimRight(*baseURL, "/"),
		tokenPath: *tokenPath,
		grpcAddr:  *grpcAddr,
		asJSON:    *asJSON,
	}

	switch cmd {
	case "auth":
		c.handleAuth(ctx, sub, rest)
	case "prices":
		c.handlePrices(ctx, sub, rest)
	case "runs":
		c.handleRuns(ctx, sub, rest)
	case "events":
		c.handleEvents(sub, rest)
	case "hash-password":
		handleHashPassword(args[1:])
	default:
		printUsage()
		os.Exit(1)
	}
}

func (c *cli) handleAuth(ctx context.Context, sub string, args []string) {
	switch sub {
	case "login":
		fs := flag.NewFlagSet("auth login", flag.ExitOnError)
		username := fs.String("username", "operator", "operator username")
		password := fs.String("password", "", "password")
		_ = fs.Parse(args)

		if *password == "" {
			log.Fatal("password is required")
		}

		payload := map[string]string{"username": *username, "password": *password}
		var resp tokenData
		if err := c.doJSON(ctx, http.MethodPost, c.baseURL+"/auth/token", "", payload, &resp); err != nil {
			log.Fatalf("login failed: %v", err)
		}
		if err := saveToken(c.tokenPath, resp); err != nil {
			log.Fatalf("save token: %v", err)
		}
		fmt.Printf("✅ logged in (token expires %s)\n", resp.ExpiresAt)
	case "me":
		var resp map[string]any
		if err := c.doJSON(ctx, http.MethodGet, c.baseURL+"/auth/me", mustToken(c.tokenPath), nil, &resp); err != nil {
			log.Fatalf("me failed: %v", err)
		}
		printJSON(resp)
	case "logout":
		if err := clearToken(c.tokenPath); err != nil {
			log.Fatalf("logout failed: %v", err)
		}
		fmt.Println("✅ logged out")
	default:
		log.Fatal("usage: pricehub auth <login|me|logout>")
	}
}

func (c *cli) handlePrices(ctx context.Context, sub string, args []string) {
	switch sub {
	case "list":
		fs := flag.NewFlagSet("prices list", flag.ExitOnError)
		item := fs.String("item", "", "item substring")
		store := fs.String("store", "", "store name")
		zipcode := fs.String("zipcode", "", "zipcode")
		since := fs.String("since", "", "YYYY-MM-DD")
		limit := fs.Int("limit", 20, "page size")
		offset := fs.Int("offset", 0, "offset")
		_ = fs.Parse(args)

		var resp priceListResponse
		if c.grpcAddr != "" {
			c.withGrpc(func(gc *grpcserver.Client) error {
				r, err := gc.ListPrices(ctx, &grpcserver.ListPricesRequest{
					Item: *item, Store: *store, Zipcode: *zipcode, Since: *since,
					Limit: int32(*limit), Offset: int32(*offset),
				})
				if err != nil {
					return err
				}
				resp = priceListResponse{Total: int(r.Total), Limit: int(r.Limit), Offset: int(r.Offset), Items: r.Items}
				return nil
			})
		} else {
			u, err := url.Parse(c.baseURL + "/prices")
			if err != nil {
				log.Fatalf("invalid base url: %v", err)
			}
			qv := u.Query()
			setIf(qv, "item", *item)
			setIf(qv, "store", *store)
			setIf(qv, "zipcode", *zipcode)
			setIf(qv, "since", *since)
			qv.Set("limit", fmt.Sprintf("%d", *limit))
			qv.Set("offset", fmt.Sprintf("%d", *offset))
			u.RawQuery = qv.Encode()

			if err := c.doJSON(ctx, http.MethodGet, u.String(), "", nil, &resp); err != nil {
				log.Fatalf("list failed: %v", err)
			}
		}

		if c.asJSON {
			printJSON(resp)
			return
		}
		printPrices(resp.Items)
		fmt.Printf("%d-%d of %d\n", resp.Offset+min(1, len(resp.Items)), resp.Offset+len(resp.Items), resp.Total)
	case "latest":
		fs := flag.NewFlagSet("prices latest", flag.ExitOnError)
		zipcode := fs.String("zipcode", "", "zipcode")
		_ = fs.Parse(args)

		var items []models.PriceRow
		if c.grpcAddr != "" {
			c.withGrpc(func(gc *grpcserver.Client) error {
				r, err := gc.LatestPrices(ctx, &grpcserver.LatestPricesRequest{Zipcode: *zipcode})
				if err != nil {
					return err
				}
				items = r.Items
				return nil
			})
		} else {
			endpoint := c.baseURL + "/prices/latest"
			if *zipcode != "" {
				endpoint += "?zipcode=" + url.QueryEscape(*zipcode)
			}
			var resp struct {
				Items []models.PriceRow `json:"items"`
			}
			if err := c.doJSON(ctx, http.MethodGet, endpoint, "", nil, &resp); err != nil {
				log.Fatalf("latest failed: %v", err)
			}
			items = resp.Items
		}

		if c.asJSON {
			printJSON(items)
			return
		}
		printPrices(items)
	default:
		log.Fatal("usage: pricehub prices <list|latest>")
	}
}

func (c *cli) handleRuns(ctx context.Context, sub string, args []string) {
	switch sub {
	case "list":
		fs := flag.NewFlagSet("runs list", flag.ExitOnError)
		limit := fs.Int("limit", 20, "page size")
		offset := fs.Int("offset", 0, "offset")
		_ = fs.Parse(args)

		var resp runListResponse
		endpoint := fmt.Sprintf("%s/runs?limit=%d&offset=%d", c.baseURL, *limit, *offset)
		if err := c.doJSON(ctx, http.MethodGet, endpoint, "", nil, &resp); err != nil {
			log.Fatalf("list failed: %v", err)
		}
		if c.asJSON {
			printJSON(resp)
			return
		}
		rows := [][]string{{"Run", "Started", "Status", "Sources", "Failed", "Persisted"}}
		for _, r := range resp.Items {
			rows = append(rows, []string{
				r.ID,
				r.StartedAt.Local().Format("2006-01-02 15:04"),
				string(r.Status),
				fmt.Sprintf("%d", r.SourcesAttempted),
				fmt.Sprintf("%d", r.SourcesFailed),
				fmt.Sprintf("%d", r.RecordsPersisted),
			})
		}
		printLines(report.Table(rows))
		if resp.Running != "" {
			fmt.Printf("running: %s\n", resp.Running)
		}
	case "show":
		fs := flag.NewFlagSet("runs show", flag.ExitOnError)
		id := fs.String("id", "", "run id")
		_ = fs.Parse(args)
		if *id == "" {
			log.Fatal("run id is required")
		}

		var resp runResponse
		if c.grpcAddr != "" {
			c.withGrpc(func(gc *grpcserver.Client) error {
				r, err := gc.GetRun(ctx, &grpcserver.GetRunRequest{ID: *id})
				if err != nil {
					return err
				}
				resp = runResponse{Run: r.Run, Failures: r.Failures}
				return nil
			})
		} else if err := c.doJSON(ctx, http.MethodGet, c.baseURL+"/runs/"+url.PathEscape(*id), "", nil, &resp); err != nil {
			log.Fatalf("show failed: %v", err)
		}

		if c.asJSON || resp.Run == nil {
			printJSON(resp)
			return
		}
		if err := report.Write(os.Stdout, resp.Run); err != nil {
			log.Fatalf("report: %v", err)
		}
	case "trigger":
		fs := flag.NewFlagSet("runs trigger", flag.ExitOnError)
		follow := fs.Bool("follow", false, "stream events until the run finishes")
		_ = fs.Parse(args)

		var resp struct {
			RunID string `json:"run_id"`
		}
		if err := c.doJSON(ctx, http.MethodPost, c.baseURL+"/runs", mustToken(c.tokenPath), nil, &resp); err != nil {
			log.Fatalf("trigger failed: %v", err)
		}
		fmt.Printf("✅ run %s started\n", resp.RunID)
		if *follow {
			endpoint, err := websocketURL(c.baseURL, "/ws")
			if err != nil {
				log.Fatalf("ws url: %v", err)
			}
			if err := watch(endpoint, resp.RunID); err != nil {
				log.Fatalf("follow failed: %v", err)
			}
		}
	default:
		log.Fatal("usage: pricehub runs <list|show|trigger>")
	}
}

func (c *cli) handleEvents(sub string, args []string) {
	switch sub {
	case "watch":
		fs := flag.NewFlagSet("events watch", flag.ExitOnError)
		wsURL := fs.String("ws", "", "WebSocket URL (defaults to /ws on API host)")
		_ = fs.Parse(args)

		endpoint := *wsURL
		if endpoint == "" {
			var err error
			endpoint, err = websocketURL(c.baseURL, "/ws")
			if err != nil {
				log.Fatalf("ws url: %v", err)
			}
		}
		if err := watch(endpoint, ""); err != nil {
			log.Fatalf("watch failed: %v", err)
		}
	case "listen":
		fs := flag.NewFlagSet("events listen", flag.ExitOnError)
		addr := fs.String("addr", "127.0.0.1:7070", "TCP event stream address")
		_ = fs.Parse(args)
		for {
			if err := listenTCP(*addr); err != nil {
				log.Printf("[events] disconnected: %v", err)
			}
			time.Sleep(1 * time.Second)
		}
	default:
		log.Fatal("usage: pricehub events <watch|listen>")
	}
}

func handleHashPassword(args []string) {
	fs := flag.NewFlagSet("hash-password", flag.ExitOnError)
	password := fs.String("password", "", "password to hash")
	_ = fs.Parse(args)
	if *password == "" {
		log.Fatal("password is required")
	}
	hash, err := auth.HashPassword(*password)
	if err != nil {
		log.Fatalf("hash failed: %v", err)
	}
	fmt.Printf("PRICEHUB_OPERATOR_PASSWORD_HASH='%s'\n", hash)
}

func (c *cli) withGrpc(call func(*grpcserver.Client) error) {
	conn, err := grpc.NewClient(c.grpcAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatalf("grpc dial: %v", err)
	}
	defer conn.Close()
	if err := call(grpcserver.NewClient(conn)); err != nil {
		log.Fatalf("grpc call failed: %v", err)
	}
}

// watch prints events until the connection drops, or until runID finishes
// when runID is set.
func watch(wsURL, runID string) error {
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	log.Printf("[events] connected to %s", wsURL)
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var ev ingest.Event
		if err := json.Unmarshal(msg, &ev); err != nil || ev.RunID == "" {
			continue
		}
		if runID != "" && ev.RunID != runID {
			continue
		}
		fmt.Println(report.EventLine(ev))
		if runID != "" && ev.Run != nil {
			return report.Write(os.Stdout, ev.Run)
		}
	}
}

func listenTCP(addr string) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	log.Printf("[events] connected to %s", addr)
	sc := bufio.NewScanner(conn)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		var ev ingest.Event
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil || ev.RunID == "" {
			fmt.Println(sc.Text())
			continue
		}
		fmt.Println(report.EventLine(ev))
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return os.ErrClosed
}

func printPrices(items []models.PriceRow) {
	rows := [][]string{{"Item", "Price", "Unit", "Store", "Zip", "Observed"}}
	for _, p := range items {
		rows = append(rows, []string{
			p.Item,
			p.Price.StringFixed(2),
			p.Unit,
			p.Store,
			p.Zipcode,
			p.ObservedAt.Local().Format("2006-01-02 15:04"),
		})
	}
	printLines(report.Table(rows))
}

func printLines(lines []string) {
	for _, l := range lines {
		fmt.Println(l)
	}
}

func setIf(qv url.Values, key, val string) {
	if val != "" {
		qv.Set(key, val)
	}
}

func (c *cli) doJSON(ctx context.Context, method, endpoint, token string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = strings.NewReader(string(b))
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s failed: %s", method, endpoint, strings.TrimSpace(string(data)))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

func printJSON(v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatalf("json: %v", err)
	}
	fmt.Println(string(b))
}

func defaultTokenPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./.pricehub-token.json"
	}
	return filepath.Join(home, ".pricehub", "token.json")
}

func saveToken(path string, td tokenData) error {
	if td.Token == "" {
		return errors.New("empty token")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(td, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func readToken(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	var td tokenData
	if err := json.Unmarshal(data, &td); err != nil {
		return "", err
	}
	return strings.TrimSpace(td.Token), nil
}

func mustToken(path string) string {
	token, err := readToken(path)
	if err != nil {
		log.Fatalf("token not found, please login: %v", err)
	}
	if token == "" {
		log.Fatal("token empty, please login")
	}
	return token
}

func clearToken(path string) error {
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	return nil
}

func websocketURL(baseURL, path string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	scheme := "ws"
	if u.Scheme == "https" {
		scheme = "wss"
	}
	return (&url.URL{
		Scheme: scheme,
		Host:   u.Host,
		Path:   path,
	}).String(), nil
}

func printUsage() {
	fmt.Println("pricehub [-api URL] [-grpc ADDR] [-json] <command> [subcommand] [flags]")
	fmt.Println("commands:")
	fmt.Println("  auth login|me|logout")
	fmt.Println("  prices list|latest")
	fmt.Println("  runs list|show|trigger")
	fmt.Println("  events watch|listen")
	fmt.Println("  hash-password")
}
