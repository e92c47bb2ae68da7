package main

import (
	"errors"
	"fmt"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/modestbitboard/breadbox"
	"github.com/modestbitboard/breadbox/config"
	"github.com/modestbitboard/breadbox/userdb"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage API users",
	Long: `Manage users in the configured user database.

Each user has a single API key, generated once at creation and never
stored in plaintext. Lost keys cannot be recovered; remove the user
and create them again.`,
}

var userAddCmd = &cobra.Command{
	Use:   "add [username]",
	Short: "Create a user and print their API key",
	Long: `Create a user and print their API key.

The username and access tier are prompted for when not given. The key
is shown exactly once.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runUserAdd,
}

var userRemoveCmd = &cobra.Command{
	Use:     "remove <username>",
	Aliases: []string{"rm"},
	Short:   "Remove a user",
	Args:    cobra.ExactArgs(1),
	RunE:    runUserRemove,
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all users",
	RunE:  runUserList,
}

var userAddTier string

// userTiers orders the credentialed tiers; index+1 is the auth level.
var userTiers = []string{"users", "contributors", "admin"}

func init() {
	userAddCmd.Flags().StringVar(&userAddTier, "tier", "", "access tier: users, contributors, admin (prompted when empty)")

	userCmd.AddCommand(userAddCmd)
	userCmd.AddCommand(userRemoveCmd)
	userCmd.AddCommand(userListCmd)
	rootCmd.AddCommand(userCmd)
}

func openUserStore(cmd *cobra.Command) (userdb.Store, func(), error) {
	cfg, err := config.FromContext(cmd.Context())
	if err != nil {
		return nil, nil, err
	}
	if cfg.Users.Type == "" {
		return nil, nil, errors.New("no user database configured (set users.type or --users-type)")
	}
	return userdb.Open(cmd.Context(), cfg.Users)
}

func runUserAdd(cmd *cobra.Command, args []string) error {
	var username string
	if len(args) == 1 {
		username = args[0]
	} else {
		prompt := promptui.Prompt{
			Label: "Username",
			Validate: func(input string) error {
				if !breadbox.IsValidName(input) {
					return errors.New("usernames are letters, digits, '-' and '_'")
				}
				return nil
			},
		}
		name, err := prompt.Run()
		if err != nil {
			return handlePromptError(err)
		}
		username = name
	}

	if !breadbox.IsValidName(username) {
		return fmt.Errorf("invalid username: %q", username)
	}

	authLevel := 0
	if userAddTier != "" {
		for i, tier := range userTiers {
			if tier == userAddTier {
				authLevel = i + 1
				break
			}
		}
		if authLevel == 0 {
			return fmt.Errorf("unknown tier %q (want users, contributors, or admin)", userAddTier)
		}
	} else {
		sel := promptui.Select{
			Label: "Access tier",
			Items: userTiers,
		}
		idx, _, err := sel.Run()
		if err != nil {
			return handlePromptError(err)
		}
		authLevel = idx + 1
	}

	store, closeDB, err := openUserStore(cmd)
	if err != nil {
		return err
	}
	defer closeDB()

	user, key, err := store.Create(cmd.Context(), username, authLevel)
	if err != nil {
		if errors.Is(err, userdb.ErrUserExists) {
			return fmt.Errorf("user %q already exists", username)
		}
		return fmt.Errorf("create user: %w", err)
	}

	fmt.Printf("User %q created with %s access.\n", user.Username, breadbox.Group(user.AuthLevel))
	fmt.Println("API key (shown once, store it now):")
	fmt.Printf("  %s\n", key)
	return nil
}

func runUserRemove(cmd *cobra.Command, args []string) error {
	store, closeDB, err := openUserStore(cmd)
	if err != nil {
		return err
	}
	defer closeDB()

	username := args[0]
	if err := store.Remove(cmd.Context(), username); err != nil {
		if errors.Is(err, breadbox.ErrNotFound) {
			return fmt.Errorf("user %q not found", username)
		}
		return fmt.Errorf("remove user: %w", err)
	}

	fmt.Printf("User %q removed. Their key stops working immediately.\n", username)
	return nil
}

func runUserList(cmd *cobra.Command, args []string) error {
	store, closeDB, err := openUserStore(cmd)
	if err != nil {
		return err
	}
	defer closeDB()

	users, err := store.List(cmd.Context())
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	if len(users) == 0 {
		fmt.Println("No users.")
		return nil
	}

	fmt.Printf("%-24s %-14s %s\n", "USERNAME", "TIER", "CREATED")
	for _, u := range users {
		fmt.Printf("%-24s %-14s %s\n",
			u.Username,
			breadbox.Group(u.AuthLevel),
			u.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	return nil
}

// handlePromptError handles promptui errors.
func handlePromptError(err error) error {
	if errors.Is(err, promptui.ErrInterrupt) {
		fmt.Println("Cancelled.")
		return nil //nolint:nilerr // User cancelled, not an error
	}
	return err
}
