package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"echvid/internal/accounts"
	"echvid/internal/api"
)

const passwordEnv = "ECHVID_PASSWORD"

func newUsersCommand(ctx *commandContext) *cobra.Command {
	usersCmd := &cobra.Command{
		Use:   "users",
		Short: "Manage API accounts",
	}
	usersCmd.AddCommand(newUsersAddCommand(ctx))
	usersCmd.AddCommand(newUsersListCommand(ctx))
	usersCmd.AddCommand(newUsersSetPlanCommand(ctx))
	usersCmd.AddCommand(newUsersSetRoleCommand(ctx))
	return usersCmd
}

func newUsersAddCommand(ctx *commandContext) *cobra.Command {
	var planFlag, roleFlag string
	var passwordStdin bool

	cmd := &cobra.Command{
		Use:   "add <email>",
		Short: "Create an account (password from --password-stdin or " + passwordEnv + ")",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, err := accounts.ParsePlan(planFlag)
			if err != nil {
				return err
			}
			role, err := accounts.ParseRole(roleFlag)
			if err != nil {
				return err
			}
			password, err := readPassword(cmd, passwordStdin)
			if err != nil {
				return err
			}
			return ctx.withAccounts(func(users *accounts.Store) error {
				user, err := users.Create(cmd.Context(), args[0], password, plan, role)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, api.FromUser(user))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created user %d (%s, %s plan, %s)\n", user.ID, user.Email, user.Plan, user.Role)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&planFlag, "plan", string(accounts.PlanFree), "Plan: free or premium")
	cmd.Flags().StringVar(&roleFlag, "role", string(accounts.RoleUser), "Role: user or admin")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "Read the password from stdin")
	return cmd
}

func readPassword(cmd *cobra.Command, fromStdin bool) (string, error) {
	if fromStdin {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return "", fmt.Errorf("read password: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}
	if value := os.Getenv(passwordEnv); value != "" {
		return value, nil
	}
	return "", errors.New("password required: pass --password-stdin or set " + passwordEnv)
}

func newUsersListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccounts(func(users *accounts.Store) error {
				list, err := users.List(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					views := make([]api.UserView, 0, len(list))
					for i := range list {
						views = append(views, api.FromUser(&list[i]))
					}
					return writeJSON(cmd, views)
				}
				rows := make([][]string, 0, len(list))
				for _, u := range list {
					rows = append(rows, []string{strconv.FormatInt(u.ID, 10), u.Email, string(u.Plan), string(u.Role), formatDisplayTime(u.CreatedAt)})
				}
				printTable(cmd.OutOrStdout(), []string{"ID", "Email", "Plan", "Role", "Created"}, rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft}, "No users")
				return nil
			})
		},
	}
}

func newUsersSetPlanCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "set-plan <user-id> <free|premium>",
		Short: "Change an account's plan",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			plan, err := accounts.ParsePlan(args[1])
			if err != nil {
				return err
			}
			return ctx.withAccounts(func(users *accounts.Store) error {
				if err := users.SetPlan(cmd.Context(), id, plan); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "User %d is now on the %s plan\n", id, plan)
				return nil
			})
		},
	}
}

func newUsersSetRoleCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "set-role <user-id> <user|admin>",
		Short: "Change an account's role",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			role, err := accounts.ParseRole(args[1])
			if err != nil {
				return err
			}
			return ctx.withAccounts(func(users *accounts.Store) error {
				if err := users.SetRole(cmd.Context(), id, role); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "User %d now has role %s\n", id, role)
				return nil
			})
		},
	}
}
