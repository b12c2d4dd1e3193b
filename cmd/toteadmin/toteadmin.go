package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log"
	"os"
	"syscall"
	"text/tabwriter"
	"time"

	"golang.org/x/term"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
	"maze.io/x/duration"

	"github.com/ts4z/tote/config"
	"github.com/ts4z/tote/dbutil"
	"github.com/ts4z/tote/model"
	"github.com/ts4z/tote/password"
	"github.com/ts4z/tote/state"
)

const (
	// these sizes are recommended by the gorilla/securecookie package
	// https://pkg.go.dev/github.com/gorilla/securecookie#New
	hashKeySize  = 32
	blockKeySize = 16
)

var (
	honorOffset  = 180 * 24 * time.Hour
	mintDuration = 180 * 24 * time.Hour
	startOffset  time.Duration
	clock        clockwork.Clock = clockwork.NewRealClock()

	userNick       string
	userIsAdmin    bool
	userIsOperator bool

	primaryReserve   string
	secondaryReserve string
)

func newStorage(ctx context.Context) *state.DBStorage {
	db, err := dbutil.Connect()
	if err != nil {
		log.Fatalf("can't connect to database: %v", err)
	}
	storage, err := state.NewDBStorage(ctx, db)
	if err != nil {
		log.Fatalf("can't configure database: %v", err)
	}
	return storage
}

func generateKey(sz int) ([]byte, error) {
	key := make([]byte, sz)
	_, err := rand.Read(key)
	if err != nil {
		return nil, fmt.Errorf("generating random key: %w", err)
	}
	return key, nil
}

func getKeyStatus(now time.Time, v model.CookieKeyValidity) string {
	if now.Before(v.MintFrom) {
		return "not yet active"
	}
	if now.After(v.HonorUntil) {
		return "expired"
	}
	if now.After(v.MintUntil) {
		// it's an older code, but it checks out
		return "obsolete"
	}
	return "active"
}

func listKeys(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	storage := newStorage(ctx)
	defer storage.Close()

	sc, err := storage.FetchSiteConfig(ctx)
	if err != nil {
		return fmt.Errorf("fetching site config: %w", err)
	}

	now := clock.Now()
	fmt.Printf("Current keys (as of %v):\n\n", now.Format(time.RFC3339))

	for i, key := range sc.CookieKeys {
		fmt.Printf("Key %d:\n", i+1)
		fmt.Printf("  Mint window:  %v to %v\n",
			key.Validity.MintFrom.Format(time.RFC3339),
			key.Validity.MintUntil.Format(time.RFC3339))
		fmt.Printf("  Honor until: %v\n",
			key.Validity.HonorUntil.Format(time.RFC3339))
		fmt.Printf("  Status: %v\n\n",
			getKeyStatus(now, key.Validity))
	}
	return nil
}

func rotateKeys(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	storage := newStorage(ctx)
	defer storage.Close()

	sc, err := storage.FetchSiteConfig(ctx)
	if err != nil {
		return fmt.Errorf("fetching site config: %w", err)
	}

	now := clock.Now()
	validKeys := []model.CookieKeyPair{}

	// Keep only non-expired keys
	for _, key := range sc.CookieKeys {
		if now.Before(key.Validity.HonorUntil) {
			validKeys = append(validKeys, key)
		}
	}

	hashKey, err := generateKey(hashKeySize)
	if err != nil {
		return fmt.Errorf("generating hash key: %w", err)
	}

	blockKey, err := generateKey(blockKeySize)
	if err != nil {
		return fmt.Errorf("generating block key: %w", err)
	}

	mintFrom := now.Add(startOffset)
	mintUntil := mintFrom.Add(mintDuration)
	honorUntil := mintUntil.Add(honorOffset)

	newKey := model.CookieKeyPair{
		Validity: model.CookieKeyValidity{
			MintFrom:   mintFrom,
			MintUntil:  mintUntil,
			HonorUntil: honorUntil,
		},
		HashKey64:  base64.StdEncoding.EncodeToString(hashKey),
		BlockKey64: base64.StdEncoding.EncodeToString(blockKey),
	}

	sc.CookieKeys = append(validKeys, newKey)

	if err := storage.SaveSiteConfig(ctx, sc); err != nil {
		return fmt.Errorf("saving updated config: %w", err)
	}

	fmt.Printf("Key rotation complete:\n")
	fmt.Printf("  Start minting: %v\n", mintFrom.Format(time.RFC3339))
	fmt.Printf("  Stop minting:  %v\n", mintUntil.Format(time.RFC3339))
	fmt.Printf("  Honor until:   %v\n", honorUntil.Format(time.RFC3339))
	return nil
}

// durationFlag accepts both "72h" and calendar units like "90d" or "26w".
func durationFlag(dest *time.Duration) func(string) error {
	return func(s string) error {
		if d, err := time.ParseDuration(s); err == nil {
			*dest = d
			return nil
		}
		d, err := duration.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("can't parse duration %q: %w", s, err)
		}
		*dest = time.Duration(d)
		return nil
	}
}

func readPassword() (string, error) {
	fmt.Print("Enter password: ")
	pwBytes, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	if len(pwBytes) == 0 {
		return "", fmt.Errorf("password is required")
	}
	return string(pwBytes), nil
}

func addUser(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	storage := newStorage(ctx)
	defer storage.Close()

	if userNick == "" {
		return fmt.Errorf("nick is required")
	}

	userPassword, err := readPassword()
	if err != nil {
		return err
	}

	hashedPassword := password.Hash(userPassword)

	err = storage.CreateUser(ctx, userNick, hashedPassword, userIsAdmin, userIsOperator)
	if err != nil {
		return fmt.Errorf("creating user: %w", err)
	}

	fmt.Printf("User %q added successfully.\n", userNick)
	return nil
}

func listUsers(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	storage := newStorage(ctx)
	defer storage.Close()

	users, err := storage.FetchUsers(ctx)
	if err != nil {
		return fmt.Errorf("fetching users: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)

	fmt.Fprintf(w, "id\tnick\tadmin\toperator\n")
	for _, user := range users {
		fmt.Fprintf(w, "%d\t%s\t%v\t%v\n", user.ID, user.Nick, user.IsAdmin, user.IsOperator)
	}
	w.Flush()
	return nil
}

func checkPassword(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	storage := newStorage(ctx)
	defer storage.Close()

	nick := args[0]

	userPassword, err := readPassword()
	if err != nil {
		return err
	}

	userRow, err := storage.FetchUserRow(ctx, nick)
	if err != nil {
		return fmt.Errorf("fetching user %q: %w", nick, err)
	}

	checker, err := password.NewChecker(userRow)
	if err != nil {
		return fmt.Errorf("setting up password checker: %w", err)
	}

	_, err = checker.Validate(userPassword)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return nil
	}

	fmt.Printf("ok\n")
	return nil
}

func deleteUser(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	storage := newStorage(ctx)
	defer storage.Close()

	nick := args[0]

	err := storage.DeleteUserByNick(ctx, nick)
	if err != nil {
		return fmt.Errorf("deleting user %q: %w", nick, err)
	}

	return nil
}

func setOperator(isOperator bool) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		storage := newStorage(ctx)
		defer storage.Close()

		nick := args[0]
		if err := storage.SetOperator(ctx, nick, isOperator); err != nil {
			return fmt.Errorf("setting operator=%v for %q: %w", isOperator, nick, err)
		}
		fmt.Printf("User %q operator=%v.\n", nick, isOperator)
		return nil
	}
}

func setReserves(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	storage := newStorage(ctx)
	defer storage.Close()

	if primaryReserve == "" || secondaryReserve == "" {
		return fmt.Errorf("both --primary and --secondary are required")
	}

	sc, err := storage.FetchSiteConfig(ctx)
	if err != nil {
		return fmt.Errorf("fetching site config: %w", err)
	}
	sc.PrimaryReserve = primaryReserve
	sc.SecondaryReserve = secondaryReserve
	if err := storage.SaveSiteConfig(ctx, sc); err != nil {
		return fmt.Errorf("saving updated config: %w", err)
	}

	fmt.Printf("Reserves set: primary %q, secondary %q.\n", primaryReserve, secondaryReserve)
	return nil
}

func main() {
	config.Init()

	rootCmd := &cobra.Command{
		Short: "Tote administration tool",
		Use:   "toteadmin",
	}

	keyCmd := &cobra.Command{
		Short: "Manage authentication keys",
		Use:   "key",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List current keys and their status",
		RunE:  listKeys,
	}

	rotateCmd := &cobra.Command{
		Use:   "rotate",
		Short: "Remove expired keys and add a new key",
		RunE:  rotateKeys,
	}
	rotateCmd.Flags().Func("start-offset", "How long to wait before the key becomes valid (e.g. 24h or 1d)", durationFlag(&startOffset))
	rotateCmd.Flags().Func("mint-duration", "How long the key may mint new cookies (default 180 days)", durationFlag(&mintDuration))
	rotateCmd.Flags().Func("honor-offset", "How long after minting ends to honor the key (default 180 days)", durationFlag(&honorOffset))

	keyCmd.AddCommand(listCmd, rotateCmd)
	rootCmd.AddCommand(keyCmd)

	userCmd := &cobra.Command{
		Short: "Manage users",
		Use:   "user",
	}

	addUserCmd := &cobra.Command{
		Use:   "add",
		Short: "Add a new user",
		RunE:  addUser,
	}
	addUserCmd.Flags().StringVar(&userNick, "nick", "", "User's nick")
	addUserCmd.Flags().BoolVar(&userIsAdmin, "admin", false, "Set user as admin")
	addUserCmd.Flags().BoolVar(&userIsOperator, "operator", false, "Set user as operator")

	deleteUserCmd := &cobra.Command{
		Use:   "delete [nick]",
		Short: "Delete a user",
		Args:  cobra.ExactArgs(1),
		RunE:  deleteUser,
	}

	listUserCmd := &cobra.Command{
		Use:   "list",
		Short: "List all users",
		RunE:  listUsers,
	}

	pwCmd := &cobra.Command{
		Use:   "pw",
		Short: "Password-related operations for users",
	}

	checkCmd := &cobra.Command{
		Use:   "check [nick]",
		Short: "Check a user's password",
		Args:  cobra.ExactArgs(1),
		RunE:  checkPassword,
	}
	pwCmd.AddCommand(checkCmd)

	opCmd := &cobra.Command{
		Use:   "op",
		Short: "Grant or revoke the operator role",
	}
	grantCmd := &cobra.Command{
		Use:   "grant [nick]",
		Short: "Grant the operator role",
		Args:  cobra.ExactArgs(1),
		RunE:  setOperator(true),
	}
	revokeCmd := &cobra.Command{
		Use:   "revoke [nick]",
		Short: "Revoke the operator role",
		Args:  cobra.ExactArgs(1),
		RunE:  setOperator(false),
	}
	opCmd.AddCommand(grantCmd, revokeCmd)

	userCmd.AddCommand(addUserCmd, listUserCmd, deleteUserCmd, pwCmd, opCmd)
	rootCmd.AddCommand(userCmd)

	siteCmd := &cobra.Command{
		Use:   "site",
		Short: "Manage site configuration",
	}
	reservesCmd := &cobra.Command{
		Use:   "reserves",
		Short: "Set the reserve sweep accounts",
		RunE:  setReserves,
	}
	reservesCmd.Flags().StringVar(&primaryReserve, "primary", "", "Primary reserve account")
	reservesCmd.Flags().StringVar(&secondaryReserve, "secondary", "", "Secondary reserve account")
	siteCmd.AddCommand(reservesCmd)
	rootCmd.AddCommand(siteCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
