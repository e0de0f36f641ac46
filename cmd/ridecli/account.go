package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/logiride/client/internal/domain/form"
	"github.com/logiride/client/internal/domain/ledger"
	"github.com/logiride/client/internal/domain/shared/valueobject"
	"github.com/logiride/client/internal/infrastructure/validation"
)

func runLogin(ctx context.Context, a *app, args []string) error {
	fs := flags("login")
	phone := fs.String("phone", "", "Phone number (10 digits)")
	password := fs.String("password", "", "Password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	s, err := a.auth.Login(ctx, form.LoginForm{Phone: *phone, Password: *password})
	if err != nil {
		return describe(err)
	}
	fmt.Printf("Signed in as %s (%s)\n", s.Username, s.Role)
	return nil
}

func runLogout(ctx context.Context, a *app, _ []string) error {
	if err := a.auth.Logout(ctx); err != nil {
		return err
	}
	fmt.Println("Signed out")
	return nil
}

func runWhoami(ctx context.Context, a *app, _ []string) error {
	p, err := a.account.Profile(ctx)
	if err != nil {
		return describe(err)
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Account\t%s\n", p.ID)
	fmt.Fprintf(w, "Name\t%s\n", p.FullName)
	fmt.Fprintf(w, "Phone\t%s\n", p.Phone)
	fmt.Fprintf(w, "Role\t%s\n", p.Role)
	if p.Email != "" {
		fmt.Fprintf(w, "Email\t%s\n", p.Email)
	}
	fmt.Fprintf(w, "Balance\t%s\n", valueobject.NewMoneyVND(p.Balance).Format())
	return w.Flush()
}

func runRegister(ctx context.Context, a *app, args []string) error {
	fs := flags("register")
	phone := fs.String("phone", "", "Phone number (10 digits)")
	password := fs.String("password", "", "Password, at least 6 characters")
	name := fs.String("name", "", "Full name")
	email := fs.String("email", "", "Email address")
	role := fs.String("role", "CUSTOMER", "CUSTOMER or DRIVER")
	if err := fs.Parse(args); err != nil {
		return err
	}
	p, err := a.auth.Register(ctx, form.RegisterForm{
		FullName:        *name,
		Phone:           *phone,
		Email:           *email,
		Password:        *password,
		ConfirmPassword: *password,
		Role:            *role,
	})
	if err != nil {
		return describe(err)
	}
	fmt.Printf("Registered %s (%s). Sign in with: ridecli login -phone %s\n", p.FullName, p.Role, p.Phone)
	return nil
}

func runHistory(ctx context.Context, a *app, args []string) error {
	fs := flags("history")
	asJSON := fs.Bool("json", false, "Print the grouped history as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	groups, err := a.history.Grouped(ctx, time.Now())
	if err != nil {
		return describe(err)
	}
	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(groups)
	}
	if len(groups) == 0 {
		fmt.Println("No transactions yet")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for _, g := range groups {
		fmt.Fprintf(w, "%s\n", g.Label)
		for _, tx := range g.Records {
			when := "--:--"
			if t := tx.When(); !t.IsZero() {
				when = t.In(a.cfg.History.Location()).Format("15:04")
			}
			fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n", when, tx.Type.Label(), tx.DisplayAmount(), tx.Balance().Format())
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}

	sum := ledger.Summarize(ledger.Flatten(groups))
	fmt.Printf("\n%d entries, in %s, out %s\n", sum.Count,
		valueobject.NewMoneyVND(sum.Credits).Format(),
		valueobject.NewMoneyVND(sum.Debits).Format(),
	)
	return nil
}

// describe turns validation failures into one line per field
func describe(err error) error {
	var verr *validation.Error
	if !errors.As(err, &verr) {
		return err
	}
	msg := "invalid input:"
	for _, f := range verr.Fields.Fields() {
		msg += fmt.Sprintf("\n  %s: %s", f, verr.Fields[f])
	}
	return errors.New(msg)
}
