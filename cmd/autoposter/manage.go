package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/TobiSchelling/AutoPoster/internal/database"
	"github.com/TobiSchelling/AutoPoster/internal/slots"
)

// --- accounts command ---

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Manage connected accounts",
}

var accountFlags struct {
	user     string
	platform string
	name     string
	ref      string
	times    []string
	timezone string
	niche    string
	tone     string
	pattern  string
}

var accountsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Connect an account and create its automation profile (disabled)",
	RunE: func(cmd *cobra.Command, args []string) error {
		platform := database.Platform(strings.ToLower(accountFlags.platform))
		if !platform.Valid() {
			return fmt.Errorf("unsupported platform %q", accountFlags.platform)
		}
		if _, err := slots.LoadZone(accountFlags.timezone); err != nil {
			return err
		}
		for _, t := range accountFlags.times {
			if _, _, ok := slots.ParseTimeOfDay(t); !ok {
				return fmt.Errorf("invalid time of day %q (want HH:MM)", t)
			}
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		id, err := db.InsertAccount(cmd.Context(), database.Account{
			UserID:      accountFlags.user,
			Platform:    platform,
			Name:        accountFlags.name,
			ExternalRef: optional(accountFlags.ref),
			IsActive:    true,
			Schedule:    database.Schedule{Times: accountFlags.times, Timezone: accountFlags.timezone},
			Niche:       optional(accountFlags.niche),
			Tone:        optional(accountFlags.tone),
			Pattern:     optional(accountFlags.pattern),
		})
		if err != nil {
			return err
		}
		if err := db.UpsertProfile(cmd.Context(), database.AutomationProfile{AccountID: id}); err != nil {
			return err
		}
		fmt.Printf("Added account [%d]: %s (%s)\n", id, accountFlags.name, platform)
		fmt.Printf("Enable automation with: autoposter profiles set %d --enabled\n", id)
		return nil
	},
}

var accountsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List connected accounts",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		accounts, err := db.GetAllAccounts(cmd.Context())
		if err != nil {
			return err
		}
		if len(accounts) == 0 {
			fmt.Println("No accounts. Add one with: autoposter accounts add")
			return nil
		}

		for _, a := range accounts {
			icon := " "
			if a.IsActive {
				icon = "*"
			}
			times := strings.Join(a.Schedule.Times, ",")
			if times == "" {
				times = "default"
			}
			tz := a.Schedule.Timezone
			if tz == "" {
				tz = "UTC"
			}
			fmt.Printf("  [%d] %s %s (%s) %s %s", a.ID, icon, a.Name, a.Platform, times, tz)
			if a.Niche != nil {
				fmt.Printf(" niche=%q", *a.Niche)
			}
			fmt.Println()
		}
		return nil
	},
}

var accountsToggleCmd = &cobra.Command{
	Use:   "toggle [id]",
	Short: "Toggle an account's active state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		account, err := db.GetAccount(cmd.Context(), id)
		if err != nil {
			return err
		}
		if account == nil {
			return fmt.Errorf("account %d not found", id)
		}
		if err := db.SetAccountActive(cmd.Context(), id, !account.IsActive); err != nil {
			return err
		}
		newState := "inactive"
		if !account.IsActive {
			newState = "active"
		}
		fmt.Printf("Account [%d] %s: %s\n", id, account.Name, newState)
		return nil
	},
}

func init() {
	f := accountsAddCmd.Flags()
	f.StringVar(&accountFlags.user, "user", "local", "Owning user")
	f.StringVar(&accountFlags.platform, "platform", "", "linkedin, facebook, instagram, pinterest or twitter")
	f.StringVar(&accountFlags.name, "name", "", "Display name")
	f.StringVar(&accountFlags.ref, "ref", "", "Platform account reference passed to the publisher")
	f.StringSliceVar(&accountFlags.times, "times", nil, "Local posting times, e.g. 08:00,14:00")
	f.StringVar(&accountFlags.timezone, "timezone", "UTC", "IANA timezone of the posting times")
	f.StringVar(&accountFlags.niche, "niche", "", "Topic area for generated posts")
	f.StringVar(&accountFlags.tone, "tone", "", "Writing tone for generated posts")
	f.StringVar(&accountFlags.pattern, "pattern", "", "Content pattern for generated posts")
	accountsAddCmd.MarkFlagRequired("platform")
	accountsAddCmd.MarkFlagRequired("name")

	accountsCmd.AddCommand(accountsAddCmd)
	accountsCmd.AddCommand(accountsListCmd)
	accountsCmd.AddCommand(accountsToggleCmd)
}

// --- profiles command ---

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "Manage automation profiles",
}

var profileFlags struct {
	batchSize     int
	errorHandling string
	enabled       bool
}

var profilesSetCmd = &cobra.Command{
	Use:   "set [account-id]",
	Short: "Create or update the automation profile of an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx := cmd.Context()
		account, err := db.GetAccount(ctx, id)
		if err != nil {
			return err
		}
		if account == nil {
			return fmt.Errorf("account %d not found", id)
		}

		p := database.AutomationProfile{AccountID: id, BatchSize: 1, ErrorHandling: database.ErrorHandlingContinue}
		if existing, err := db.GetProfile(ctx, id); err != nil {
			return err
		} else if existing != nil {
			p = *existing
		}
		if cmd.Flags().Changed("batch-size") {
			p.BatchSize = profileFlags.batchSize
		}
		if cmd.Flags().Changed("error-handling") {
			p.ErrorHandling = database.ErrorHandling(profileFlags.errorHandling)
		}
		if cmd.Flags().Changed("enabled") {
			p.Enabled = profileFlags.enabled
		}
		if err := db.UpsertProfile(ctx, p); err != nil {
			return err
		}
		fmt.Printf("Profile for [%d] %s: enabled=%t batch_size=%d error_handling=%s\n",
			id, account.Name, p.Enabled, max(p.BatchSize, 1), p.ErrorHandling)
		return nil
	},
}

var profilesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List automation profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		profiles, err := db.GetAllProfiles(cmd.Context())
		if err != nil {
			return err
		}
		if len(profiles) == 0 {
			fmt.Println("No automation profiles.")
			return nil
		}
		for _, p := range profiles {
			icon := " "
			if p.Enabled {
				icon = "*"
			}
			fmt.Printf("  [%d] %s batch_size=%d error_handling=%s\n", p.AccountID, icon, p.BatchSize, p.ErrorHandling)
		}
		return nil
	},
}

func init() {
	f := profilesSetCmd.Flags()
	f.IntVar(&profileFlags.batchSize, "batch-size", 1, "Max slots processed per run")
	f.StringVar(&profileFlags.errorHandling, "error-handling", "continue", "continue or stop")
	f.BoolVar(&profileFlags.enabled, "enabled", true, "Enable recurring generation")

	profilesCmd.AddCommand(profilesSetCmd)
	profilesCmd.AddCommand(profilesListCmd)
}

// --- posts command ---

var postsCmd = &cobra.Command{
	Use:   "posts",
	Short: "Schedule and inspect posts",
}

var postFlags struct {
	at       string
	hashtags []string
	media    []string
	limit    int
}

var postsScheduleCmd = &cobra.Command{
	Use:   "schedule [account-id] [content]",
	Short: "Schedule a one-off post",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		when, err := parseWhen(postFlags.at)
		if err != nil {
			return err
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx := cmd.Context()
		account, err := db.GetAccount(ctx, id)
		if err != nil {
			return err
		}
		if account == nil {
			return fmt.Errorf("account %d not found", id)
		}

		postID, err := db.InsertPost(ctx, database.NewPost{
			AccountID:   id,
			Platform:    account.Platform,
			Content:     args[1],
			Hashtags:    postFlags.hashtags,
			MediaURLs:   postFlags.media,
			Status:      database.StatusScheduled,
			Origin:      database.OriginManual,
			ScheduledAt: &when,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Scheduled post [%d] for %s at %s\n", postID, account.Name, database.FormatTime(when))
		return nil
	},
}

var postsListCmd = &cobra.Command{
	Use:   "list [account-id]",
	Short: "List recent posts of an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		posts, err := db.ListPostsForAccount(cmd.Context(), id, postFlags.limit)
		if err != nil {
			return err
		}
		if len(posts) == 0 {
			fmt.Println("No posts.")
			return nil
		}
		for _, p := range posts {
			when := "-"
			if p.ScheduledAt != nil {
				when = database.FormatTime(*p.ScheduledAt)
			}
			text := p.Content
			if len(text) > 60 {
				text = text[:60] + "..."
			}
			fmt.Printf("  [%d] %-9s %-10s %s %s\n", p.ID, p.Status, p.Origin, when, text)
			if p.ErrorMessage != nil {
				fmt.Printf("        error: %s\n", *p.ErrorMessage)
			}
		}
		return nil
	},
}

func init() {
	f := postsScheduleCmd.Flags()
	f.StringVar(&postFlags.at, "at", "", "When to publish (RFC 3339)")
	f.StringSliceVar(&postFlags.hashtags, "hashtags", nil, "Hashtags, e.g. #launch,#news")
	f.StringSliceVar(&postFlags.media, "media", nil, "Media URLs")
	postsScheduleCmd.MarkFlagRequired("at")
	postsListCmd.Flags().IntVar(&postFlags.limit, "limit", 20, "Max posts to show")

	postsCmd.AddCommand(postsScheduleCmd)
	postsCmd.AddCommand(postsListCmd)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid ID: %s", s)
	}
	return id, nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
