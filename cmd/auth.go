package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/taskdeck/internal/apierr"
	"github.com/taskdeck/internal/session"
	"github.com/taskdeck/internal/tasks"
)

// maxChallengeAttempts bounds how many puzzles login answers in one run.
const maxChallengeAttempts = 3

// LoginCommand returns the login command
func LoginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "Sign in and store credentials",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "username",
				Aliases: []string{"u"},
				Usage:   "Account username",
			},
			&cli.StringFlag{
				Name:    "password",
				Aliases: []string{"p"},
				Usage:   "Account password (prompted when omitted)",
				EnvVars: []string{"TASKDECK_PASSWORD"},
			},
			&cli.StringFlag{
				Name:  "captcha-answer",
				Usage: "Answer to a pending bot-check question",
			},
		},
		Action: runLogin,
	}
}

func runLogin(c *cli.Context) error {
	rt, err := newRuntime(c)
	if err != nil {
		return err
	}

	username := c.String("username")
	if username == "" {
		if username, err = rt.prompt("Username"); err != nil {
			return err
		}
	}
	password := c.String("password")
	if password == "" {
		if password, err = rt.promptSecret("Password"); err != nil {
			return err
		}
	}
	if answer := c.String("captcha-answer"); answer != "" {
		rt.Challenge.SetAnswer(answer)
	}

	for attempt := 0; ; attempt++ {
		err = rt.Session.Login(c.Context, username, password)
		if err == nil || !errors.Is(err, apierr.ChallengeRequired) || attempt >= maxChallengeAttempts {
			break
		}
		question := rt.Challenge.Question()
		if question == "" {
			break
		}
		answer, perr := rt.prompt(fmt.Sprintf("Security check: %s", question))
		if perr != nil {
			return perr
		}
		rt.Challenge.SetAnswer(answer)
	}
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	if rt.Session.State() == session.EmailUnverified {
		rt.printf("%s\n", warnStyle.Render("Your email is not verified yet. Run `taskdeck verify CODE`."))
	}
	return nil
}

// LogoutCommand returns the logout command
func LogoutCommand() *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "Revoke and forget stored credentials",
		Action: func(c *cli.Context) error {
			rt, err := newRuntime(c)
			if err != nil {
				return err
			}
			rt.Session.Logout(c.Context)
			return nil
		},
	}
}

// RegisterCommand returns the register command
func RegisterCommand() *cli.Command {
	return &cli.Command{
		Name:  "register",
		Usage: "Create a new account",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "username", Aliases: []string{"u"}, Usage: "Account username", Required: true},
			&cli.StringFlag{Name: "email", Aliases: []string{"e"}, Usage: "Email address", Required: true},
			&cli.StringFlag{Name: "password", Aliases: []string{"p"}, Usage: "Password (prompted when omitted)", EnvVars: []string{"TASKDECK_PASSWORD"}},
			&cli.StringFlag{Name: "role", Aliases: []string{"r"}, Usage: "developer, manager or auditor", Value: string(session.RoleDeveloper)},
		},
		Action: runRegister,
	}
}

func runRegister(c *cli.Context) error {
	rt, err := newRuntime(c)
	if err != nil {
		return err
	}

	password := c.String("password")
	if password == "" {
		if password, err = rt.promptSecret("Password"); err != nil {
			return err
		}
	}

	reg := session.Registration{
		Username: c.String("username"),
		Email:    c.String("email"),
		Password: password,
		Role:     session.Role(c.String("role")),
	}
	if err := rt.Session.Register(c.Context, reg); err != nil {
		printFieldErrors(rt, err)
		return fmt.Errorf("registration failed: %w", err)
	}
	return nil
}

func printFieldErrors(rt *Runtime, err error) {
	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) {
		return
	}
	for name, msgs := range apiErr.Fields {
		for _, msg := range msgs {
			rt.printf("  %s %s\n", labelStyle.Render(name), msg)
		}
	}
}

// VerifyCommand returns the verify command
func VerifyCommand() *cli.Command {
	return &cli.Command{
		Name:      "verify",
		Usage:     "Verify an email address with the code from the verification mail",
		ArgsUsage: "CODE",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("missing required argument: verification code")
			}
			rt, err := newRuntime(c)
			if err != nil {
				return err
			}
			if err := rt.Session.Start(c.Context); err != nil {
				return err
			}
			return rt.Session.VerifyEmail(c.Context, c.Args().Get(0))
		},
	}
}

// WhoamiCommand returns the whoami command
func WhoamiCommand() *cli.Command {
	return &cli.Command{
		Name:   "whoami",
		Usage:  "Show the signed-in user and credential status",
		Action: runWhoami,
	}
}

func runWhoami(c *cli.Context) error {
	rt, err := newRuntime(c)
	if err != nil {
		return err
	}
	user, err := rt.requireSession(c.Context)
	if err != nil {
		return err
	}

	tok := rt.Store.Token()
	rt.printf("%s\n", headingStyle.Render(user.Username))
	rt.print(field("ID", strconv.FormatInt(user.ID, 10)))
	rt.print(field("Email", user.Email))
	rt.print(field("Role", string(user.Role)))
	rt.print(field("Timezone", user.Timezone))
	rt.print(field("State", rt.Session.State().String()))
	if tok != nil {
		rt.print(field("Token", maskSecret(tok.AccessToken)))
		expiry := fmt.Sprintf("%s (in %s)", tok.Expiry.Local().Format(time.RFC3339), time.Until(tok.Expiry).Round(time.Second))
		if rt.Store.ExpiringSoon(rt.Config.Session.ExpiryThreshold) {
			expiry = warnStyle.Render(expiry + ", renews on next request")
		}
		rt.print(field("Expires", expiry))
	}
	rt.print(field("Store", rt.Store.Path()))

	access := rt.Session.CanUpdateNow(string(tasks.PriorityMedium), time.Now())
	if !access.Allowed {
		rt.printf("%s\n", warnStyle.Render(fmt.Sprintf("%s Next window opens %s.", access.Message, access.NextAvailable.Format("Mon 15:04 MST"))))
	}
	return nil
}

// StaffCommand returns the staff command
func StaffCommand() *cli.Command {
	return &cli.Command{
		Name:  "staff",
		Usage: "List users tasks can be assigned to",
		Action: func(c *cli.Context) error {
			rt, err := newRuntime(c)
			if err != nil {
				return err
			}
			if _, err := rt.requireSession(c.Context); err != nil {
				return err
			}
			staff, err := rt.Session.Staff(c.Context)
			if err != nil {
				return fmt.Errorf("failed to load staff: %w", err)
			}
			t := newTable("ID", "USERNAME", "ROLE", "EMAIL")
			for _, u := range staff {
				t.Row(strconv.FormatInt(u.ID, 10), u.Username, string(u.Role), u.Email)
			}
			rt.printf("%s\n", t.String())
			return nil
		},
	}
}
