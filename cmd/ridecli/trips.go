package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	driverapp "github.com/logiride/client/internal/application/driver"
	tripapp "github.com/logiride/client/internal/application/trip"
	"github.com/logiride/client/internal/domain/form"
	"github.com/logiride/client/internal/domain/shared/valueobject"
	"github.com/logiride/client/internal/domain/trip"
)

func runBookings(ctx context.Context, a *app, _ []string) error {
	list, err := a.bookings.List(ctx)
	if err != nil {
		return describe(err)
	}
	if len(list) == 0 {
		fmt.Println("No bookings")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tVEHICLE\tPRICE\tFROM\tTO")
	for _, b := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", b.ID, b.Status, b.VehicleType,
			valueobject.NewMoneyVND(b.Price).Format(), b.StartAddress, b.EndAddress)
	}
	return w.Flush()
}

func runBook(ctx context.Context, a *app, args []string) error {
	fs := flags("book")
	from := fs.String("from", "", "Pickup address")
	to := fs.String("to", "", "Drop-off address")
	vehicle := fs.String("vehicle", string(trip.VehicleCar4), "MOTORBIKE, CAR_4, CAR_7 or TRUCK")
	km := fs.Float64("km", 0, "Estimated distance in kilometres")
	voucher := fs.String("voucher", "", "Voucher code")
	if err := fs.Parse(args); err != nil {
		return err
	}
	b, err := a.bookings.Create(ctx, form.BookingForm{
		StartAddress: *from,
		EndAddress:   *to,
		VehicleType:  *vehicle,
		Distance:     *km,
		VoucherCode:  *voucher,
	})
	if err != nil {
		return describe(err)
	}
	fmt.Printf("Booking %s created (%s), price %s\n", b.ID, b.Status, valueobject.NewMoneyVND(b.Price).Format())
	return nil
}

func runCancel(ctx context.Context, a *app, args []string) error {
	fs := flags("cancel")
	id := fs.String("id", "", "Booking id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	b, err := a.bookings.Cancel(ctx, *id)
	if err != nil {
		return describe(err)
	}
	fmt.Printf("Booking %s is now %s\n", b.ID, b.Status)
	return nil
}

func runVouchers(ctx context.Context, a *app, args []string) error {
	fs := flags("vouchers")
	price := fs.Int64("price", 0, "Trip price to pick the best voucher for")
	if err := fs.Parse(args); err != nil {
		return err
	}
	list, err := a.vouchers.List(ctx)
	if err != nil {
		return describe(err)
	}
	if len(list) == 0 {
		fmt.Println("No vouchers available")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CODE\tDISCOUNT\tMAX\tEXPIRES\tDESCRIPTION")
	for _, v := range list {
		fmt.Fprintf(w, "%s\t%s%%\t%s\t%s\t%s\n", v.Code, v.DiscountPct.String(),
			valueobject.NewMoneyVND(v.MaxDiscount).Format(), v.ExpiresAt.Format("02/01/2006"), v.Description)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if *price > 0 {
		amount := decimal.NewFromInt(*price)
		if v, d, ok := tripapp.Best(list, amount, time.Now()); ok {
			fmt.Printf("\nBest for %s: %s saves %s\n", valueobject.NewMoneyVND(amount).Format(), v.Code, valueobject.NewMoneyVND(d).Format())
		}
	}
	return nil
}

func runScanID(ctx context.Context, a *app, args []string) error {
	fs := flags("scan-id")
	file := fs.String("file", "", "Photo of the front of the ID card")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return errors.New("-file is required")
	}
	f, err := os.Open(*file)
	if err != nil {
		return err
	}
	defer f.Close()

	svc := driverapp.NewService(a.api, a.cfg.OCR.URL, a.log)
	card, err := svc.ScanIDCard(ctx, *file, f)
	if err != nil {
		return describe(err)
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "ID number\t%s\n", card.Number)
	fmt.Fprintf(w, "Full name\t%s\n", card.FullName)
	fmt.Fprintf(w, "Date of birth\t%s\n", formatDate(card.DateOfBirth))
	fmt.Fprintf(w, "Gender\t%s\n", card.Gender)
	fmt.Fprintf(w, "Address\t%s\n", card.Address)
	fmt.Fprintf(w, "Issued\t%s\n", formatDate(card.IssueDate))
	fmt.Fprintf(w, "Expires\t%s\n", formatDate(card.ExpiryDate))
	return w.Flush()
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("02/01/2006")
}
