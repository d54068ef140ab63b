package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/defistate/dao-state-client-go/cmd/client/config"
	"github.com/defistate/dao-state-client-go/operation"
	"github.com/defistate/dao-state-client-go/pkg/chains"
	ethpkg "github.com/defistate/dao-state-client-go/pkg/chains/ethereum"
	"github.com/defistate/dao-state-client-go/protocols/proposal"
	"github.com/defistate/dao-state-client-go/protocols/scheme"
	"github.com/defistate/dao-state-client-go/protocols/token"
	"github.com/defistate/dao-state-client-go/query"
	"github.com/defistate/dao-state-client-go/streams/live"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// --- VISUAL CONSTANTS ---
const (
	Reset  = "\033[0m"
	Bold   = "\033[1m"
	Red    = "\033[31m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Blue   = "\033[34m"
	Cyan   = "\033[36m"
	Gray   = "\033[37m"

	// DefaultReadTimeout bounds one-shot reads issued from the menu.
	DefaultReadTimeout = 15 * time.Second
)

// header prints a styled section header
func header(title string) {
	fmt.Println("\n" + Bold + Cyan + ":: " + title + " ::" + Reset)
}

func main() {
	// --- 1. CONFIG ---
	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// --- 2. SETUP LOGGING (To File) ---
	logFile, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		panic(fmt.Sprintf("Failed to open log file: %v", err))
	}
	defer logFile.Close()

	rootLogHandler := slog.NewJSONHandler(logFile, nil)
	rootLogger := slog.New(rootLogHandler)

	closeApp := func() {
		fmt.Println("\n" + Red + "Fatal error occurred. Check " + cfg.LogFile + " for details." + Reset)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	prometheusRegistry := prometheus.NewRegistry()
	if cfg.MetricsAddress != "" {
		go serveMetrics(ctx, cfg.MetricsAddress, prometheusRegistry, rootLogger)
	}

	// --- 3. INITIALIZE CLIENT ---
	var client *ethpkg.Client

	switch cfg.ChainID.Uint64() {
	case chains.Mainnet, chains.Sepolia, chains.Ganache:
		client, err = ethpkg.NewClient(ctx, ethpkg.Config{
			ChainID:       cfg.ChainID,
			LedgerURL:     cfg.LedgerURL,
			IndexerURL:    cfg.IndexerURL,
			IndexerWSURL:  cfg.IndexerWSURL,
			ContractsFile: cfg.ContractsFile,
			PrivateKey:    cfg.PrivateKey,
			PollInterval:  cfg.PollInterval,
			Confirmations: cfg.Confirmations,
			Logger:        rootLogger,
			Registry:      prometheusRegistry,
		})
		if err != nil {
			rootLogger.Error("Failed to initialize Client", "chain_id", cfg.ChainID, "error", err)
			closeApp()
		}
	default:
		rootLogger.Error(fmt.Sprintf("Client not found for chain with ID %d", cfg.ChainID.Uint64()))
		closeApp()
	}
	defer client.Close()

	// --- 4. START CONSOLE ---
	fmt.Println(Green + "Starting DAO State Client..." + Reset)
	fmt.Println("Logs are being written to '" + cfg.LogFile + "'")

	done := make(chan struct{})
	go func() {
		defer close(done)
		runConsole(ctx, &console{client: client, reader: bufio.NewReader(os.Stdin)})
	}()

	select {
	case <-done:
	case <-ctx.Done():
		fmt.Println("\n" + Yellow + "Shutting down..." + Reset)
	}
}

type console struct {
	client *ethpkg.Client
	reader *bufio.Reader
}

// runConsole handles user input and display.
func runConsole(ctx context.Context, c *console) {
	time.Sleep(500 * time.Millisecond)

	for {
		if ctx.Err() != nil {
			return
		}

		printMenu()

		fmt.Print(Bold + "Enter selection: " + Reset)
		input, err := c.reader.ReadString('\n')
		if err != nil {
			fmt.Println("Error reading input:", err)
			return
		}
		input = strings.TrimSpace(input)
		if input == "q" {
			fmt.Println(Yellow + "Exiting..." + Reset)
			return
		}

		c.handleCommand(ctx, input)

		fmt.Println("\n" + Gray + "[Press Enter to continue]" + Reset)
		c.reader.ReadString('\n')
	}
}

func printMenu() {
	fmt.Print("\033[H\033[2J") // Clear screen
	fmt.Println(Bold + "DAO STATE CLIENT" + Reset + Gray + " | v0.1.0" + Reset)
	fmt.Println(Gray + "-----------------------------------" + Reset)
	fmt.Printf(" %s1.%s Chain Status\n", Cyan, Reset)
	fmt.Printf(" %s2.%s List Schemes     %s(by DAO Address)%s\n", Cyan, Reset, Gray, Reset)
	fmt.Printf(" %s3.%s Scheme Proposals %s(by Scheme ID)%s\n", Cyan, Reset, Gray, Reset)
	fmt.Printf(" %s4.%s Token State      %s(by Token Address)%s\n", Cyan, Reset, Gray, Reset)
	fmt.Printf(" %s5.%s Token Balance\n", Cyan, Reset)
	fmt.Printf(" %s6.%s Watch Allowances %s(Live Monitor)%s\n", Cyan, Reset, Gray, Reset)
	fmt.Printf(" %s7.%s Approve For Staking\n", Cyan, Reset)
	fmt.Printf(" %s8.%s Create Proposal\n", Cyan, Reset)
	fmt.Println(Gray + "-----------------------------------" + Reset)
	fmt.Printf(" %sh.%s Help\n", Yellow, Reset)
	fmt.Printf(" %sq.%s Quit\n", Red, Reset)
	fmt.Println("")
}

func (c *console) handleCommand(ctx context.Context, input string) {
	switch input {
	case "1":
		c.printChainStatus(ctx)
	case "2":
		c.listSchemes(ctx)
	case "3":
		c.listProposals(ctx)
	case "4":
		c.printTokenState(ctx)
	case "5":
		c.printBalance(ctx)
	case "6":
		c.watchAllowances(ctx)
	case "7":
		c.approveForStaking(ctx)
	case "8":
		c.createProposal(ctx)
	case "h":
		printHelp()
	default:
		fmt.Println(Red + "Unknown command." + Reset)
	}
}

// --- COMMAND HANDLERS ---

func printHelp() {
	fmt.Print("\033[H\033[2J")

	header("DAO STATE CLIENT")
	fmt.Println(Bold + "Reads" + Reset + " come from the subgraph indexer and are live: every view")
	fmt.Println("re-emits when the indexed data changes. Balances are read from the ledger")
	fmt.Println("and refreshed on every block.")
	fmt.Println("")
	fmt.Println(Bold + "Writes" + Reset + " are signed with " + Yellow + "DAO_PRIVATE_KEY" + Reset + " and reported as they move")
	fmt.Println("through the " + Cyan + "sent" + Reset + " -> " + Cyan + "mined" + Reset + " -> " + Cyan + "confirmed" + Reset + " stages.")
	fmt.Println("")
	fmt.Println(Bold + "Proposal schemes" + Reset)
	for _, k := range scheme.SupportedKinds().ToSlice() {
		fmt.Println("   - " + Green + string(k) + Reset)
	}
}

func (c *console) printChainStatus(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, DefaultReadTimeout)
	defer cancel()

	n, err := c.client.Ledger().BlockNumber(ctx)
	if err != nil {
		printError(err)
		return
	}
	account := "read-only"
	if a := c.client.DefaultAccount(); a != (common.Address{}) {
		account = a.Hex()
	}
	fmt.Printf("\n%sSTATUS  ::%s Block %s#%d%s | Account %s%s%s | Time %s%s%s\n",
		Green, Reset,
		Bold, n, Reset,
		Bold, account, Reset,
		Bold, time.Now().Format("15:04:05"), Reset,
	)
}

func (c *console) listSchemes(ctx context.Context) {
	dao := c.prompt("[List Schemes] Enter DAO Address: ")
	if dao == "" {
		return
	}
	q, err := scheme.Search(c.client.Context, query.Options{Where: query.Where{"dao": dao}}, query.FetchNetworkOnly)
	if err != nil {
		printError(err)
		return
	}
	schemes, err := first(ctx, q)
	if err != nil {
		printError(err)
		return
	}

	header(fmt.Sprintf("SCHEMES OF %s", dao))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 4, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tADDRESS\t")
	fmt.Fprintln(w, "--\t----\t-------\t")
	for _, s := range schemes {
		st, err := s.FetchStaticState(ctx)
		if err != nil {
			printError(err)
			return
		}
		name := st.Name
		if name == "" {
			name = Gray + "<unknown>" + Reset
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t\n", truncate(st.ID), name, st.Address)
	}
	w.Flush()
}

func (c *console) listProposals(ctx context.Context) {
	id := c.prompt("[Proposals] Enter Scheme ID: ")
	if id == "" {
		return
	}
	q, err := scheme.New(id, c.client.Context).Proposals(query.Options{First: 20, OrderBy: "createdAt", OrderDirection: "desc"}, query.FetchNetworkOnly)
	if err != nil {
		printError(err)
		return
	}
	proposals, err := first(ctx, q)
	if err != nil {
		printError(err)
		return
	}
	if len(proposals) == 0 {
		fmt.Println(Yellow + "[INFO] Scheme has no proposals." + Reset)
		return
	}

	header("PROPOSALS")
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 4, ' ', 0)
	fmt.Fprintln(w, "ID\tPROPOSER\tCREATED\t")
	fmt.Fprintln(w, "--\t--------\t-------\t")
	for _, p := range proposals {
		st, err := p.FetchStaticState(ctx)
		if err != nil {
			printError(err)
			return
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t\n", truncate(st.ID.String()), st.Proposer, st.CreatedAt.Format(time.DateTime))
	}
	w.Flush()
}

func (c *console) printTokenState(ctx context.Context) {
	address := c.prompt("[Token State] Enter Token Address: ")
	if address == "" {
		return
	}
	st, err := first(ctx, token.New(address, c.client.Context).State())
	if err != nil {
		printError(err)
		return
	}

	header("TOKEN")
	printField("Address", st.Address)
	printField("Name", st.Name)
	printField("Symbol", st.Symbol)
	printField("Owner", st.Owner)
	printField("Total Supply", st.TotalSupply.Dec())
}

func (c *console) printBalance(ctx context.Context) {
	address := c.prompt("[Balance] Enter Token Address: ")
	owner := c.prompt("[Balance] Enter Owner Address: ")
	if address == "" || owner == "" {
		return
	}
	balance, err := first(ctx, token.New(address, c.client.Context).BalanceOf(owner))
	if err != nil {
		printError(err)
		return
	}
	fmt.Printf("%sBalance:%s %s\n", Green, Reset, balance.Dec())
}

func (c *console) watchAllowances(ctx context.Context) {
	address := c.prompt("[Watch Allowances] Enter Token Address: ")
	owner := c.prompt("[Watch Allowances] Enter Owner Address (empty for all): ")
	if address == "" {
		return
	}
	q, err := token.New(address, c.client.Context).Allowances(token.AllowanceFilter{Owner: owner})
	if err != nil {
		printError(err)
		return
	}

	fmt.Println(Green + "Starting Live Watch... (Press 'Enter' to stop)" + Reset)
	time.Sleep(1 * time.Second)

	stopCh := make(chan struct{})
	go func() {
		c.reader.ReadString('\n')
		close(stopCh)
	}()

	ch := make(chan []token.Allowance)
	sub := q.Subscribe(ch)
	defer sub.Unsubscribe()

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case err := <-sub.Err():
			if err != nil {
				printError(err)
			}
			return
		case allowances := <-ch:
			fmt.Print("\033[H\033[2J")
			fmt.Printf(Bold+"--- LIVE MONITOR (%s) ---\n"+Reset, time.Now().Format("15:04:05"))
			fmt.Println(Gray + "Press ENTER to return to menu." + Reset)

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 4, ' ', 0)
			fmt.Fprintln(w, "OWNER\tSPENDER\tAMOUNT\t")
			fmt.Fprintln(w, "-----\t-------\t------\t")
			for _, a := range allowances {
				fmt.Fprintf(w, "%s\t%s\t%s\t\n", a.Owner, a.Spender, a.Amount.Dec())
			}
			w.Flush()
		}
	}
}

func (c *console) approveForStaking(ctx context.Context) {
	address := c.prompt("[Approve] Enter Token Address: ")
	amount := c.prompt("[Approve] Enter Amount (wei): ")
	if address == "" || amount == "" {
		return
	}
	value, err := uint256.FromDecimal(amount)
	if err != nil {
		printError(err)
		return
	}
	if _, err := track(ctx, token.New(address, c.client.Context).ApproveForStaking(value)); err != nil {
		printError(err)
	}
}

func (c *console) createProposal(ctx context.Context) {
	id := c.prompt("[Create Proposal] Enter Scheme ID: ")
	if id == "" {
		return
	}
	s := scheme.New(id, c.client.Context)
	st, err := s.FetchStaticState(ctx)
	if err != nil {
		printError(err)
		return
	}

	opts := proposal.CreateOptions{
		DAO:             st.DAO,
		DescriptionHash: c.prompt("Description Hash: "),
	}
	switch scheme.Kind(st.Name) {
	case scheme.KindContributionReward:
		opts.Beneficiary = c.prompt("Beneficiary Address: ")
		if v := c.prompt("Native Token Reward (wei, optional): "); v != "" {
			if opts.NativeTokenReward, err = uint256.FromDecimal(v); err != nil {
				printError(err)
				return
			}
		}
	case scheme.KindGenericScheme:
		if data := c.prompt("Call Data (0x...): "); data != "" {
			if opts.CallData, err = hexutil.Decode(data); err != nil {
				printError(err)
				return
			}
		}
	case scheme.KindSchemeRegistrar:
		opts.Type = proposal.TypeSchemeRegistrarRemove
		opts.SchemeToRemove = c.prompt("Scheme Address To Remove: ")
	}

	op, err := s.CreateProposal(opts)
	if err != nil {
		printError(err)
		return
	}
	p, err := track(ctx, op)
	if err != nil {
		printError(err)
		return
	}
	fmt.Printf("%sProposal created:%s %s\n", Green, Reset, p.ID())
}

// --- HELPERS ---

// track prints each stage of op and returns its confirmed result.
func track[T any](ctx context.Context, op *operation.Operation[T]) (T, error) {
	var zero T
	ch := make(chan operation.Update[T], 3)
	sub := op.Subscribe(ch)
	defer sub.Unsubscribe()

	for {
		select {
		case u := <-ch:
			fmt.Printf("%s[%s]%s tx %s\n", Cyan, u.Stage, Reset, u.TxHash.Hex())
			if u.Stage == operation.StageConfirmed {
				return u.Result, nil
			}
		case err := <-sub.Err():
			if err == nil {
				err = operation.ErrNotConfirmed
			}
			return zero, err
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

func first[T any](ctx context.Context, q *live.Query[T]) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultReadTimeout)
	defer cancel()
	return live.First(ctx, q)
}

func (c *console) prompt(label string) string {
	fmt.Print("\n" + Bold + label + Reset)
	input, _ := c.reader.ReadString('\n')
	return strings.TrimSpace(input)
}

func printField(key string, value any) {
	fmt.Printf("  %s%-15s%s %v\n", Gray, key+":", Reset, value)
}

func printError(err error) {
	fmt.Printf(Red+"[ERROR] %v%s\n", err, Reset)
}

func truncate(s string) string {
	if len(s) > 25 {
		return s[:22] + "..."
	}
	return s
}

func serveMetrics(ctx context.Context, address string, reg *prometheus.Registry, logger *slog.Logger) {
	srv := &http.Server{Addr: address, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Metrics server stopped", "address", address, "error", err)
	}
}

func loadConfig() (*config.ClientConfig, error) {
	configPath := flag.String("config", "config.yaml", "Path to the configuration file.")
	flag.Parse()
	log.Printf("Loading configuration from: %s", *configPath)
	return config.LoadConfig(*configPath)
}
