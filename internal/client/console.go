package client

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"

	"github.com/peerpay/backend/internal/models"
)

// Console drives the interactive menus. It keeps the current session token
// only for the duration of the menu loop and hands it to each API call.
type Console struct {
	api *Client
	in  *bufio.Reader
	out io.Writer
}

func NewConsole(api *Client, in io.Reader, out io.Writer) *Console {
	return &Console{
		api: api,
		in:  bufio.NewReader(in),
		out: out,
	}
}

func (c *Console) Run() {
	fmt.Fprintln(c.out, "*********************")
	fmt.Fprintln(c.out, "*  Welcome to PeerPay!  *")
	fmt.Fprintln(c.out, "*********************")

	session := c.loginMenu()
	if session == nil {
		return
	}
	c.mainMenu(session)
}

func (c *Console) loginMenu() *AuthResponse {
	for {
		fmt.Fprintln(c.out)
		fmt.Fprintln(c.out, "1: Register")
		fmt.Fprintln(c.out, "2: Login")
		fmt.Fprintln(c.out, "0: Exit")
		switch c.promptInt("Please choose an option: ") {
		case 1:
			c.handleRegister()
		case 2:
			if session := c.handleLogin(); session != nil {
				return session
			}
		case 0:
			return nil
		default:
			fmt.Fprintln(c.out, "Invalid Selection")
		}
	}
}

func (c *Console) handleRegister() {
	fmt.Fprintln(c.out, "Please register a new user account")
	creds := c.promptCredentials()
	if _, err := c.api.Register(creds); err != nil {
		log.Printf("registration failed: %v", err)
		fmt.Fprintln(c.out, "An error occurred. Check the log for details.")
		return
	}
	fmt.Fprintln(c.out, "Registration successful. You can now login.")
}

func (c *Console) handleLogin() *AuthResponse {
	creds := c.promptCredentials()
	session, err := c.api.Login(creds)
	if err != nil {
		log.Printf("login failed: %v", err)
		fmt.Fprintln(c.out, "An error occurred. Check the log for details.")
		return nil
	}
	return session
}

func (c *Console) mainMenu(session *AuthResponse) {
	for {
		fmt.Fprintln(c.out)
		fmt.Fprintln(c.out, "1: View your current balance")
		fmt.Fprintln(c.out, "2: View your past transfers")
		fmt.Fprintln(c.out, "3: View your pending requests")
		fmt.Fprintln(c.out, "4: Send bucks")
		fmt.Fprintln(c.out, "0: Exit")
		switch c.promptInt("Please choose an option: ") {
		case 1:
			c.viewCurrentBalance(session)
		case 2:
			c.viewTransferHistory(session)
		case 3:
			fmt.Fprintln(c.out, "Not yet implemented")
		case 4:
			c.sendBucks(session)
		case 0:
			if err := c.api.Logout(session.Token); err != nil {
				log.Printf("logout failed: %v", err)
			}
			return
		default:
			fmt.Fprintln(c.out, "Invalid Selection")
		}
	}
}

func (c *Console) viewCurrentBalance(session *AuthResponse) {
	account, err := c.api.GetAccountByUserID(session.Token, session.User.ID)
	if err != nil {
		log.Printf("balance lookup failed: %v", err)
		fmt.Fprintln(c.out, "An error occurred. Check the log for details.")
		return
	}
	fmt.Fprintf(c.out, "Your current balance is: %s\n", FormatCents(account.Balance))
}

func (c *Console) viewTransferHistory(session *AuthResponse) {
	account, err := c.api.GetAccountByUserID(session.Token, session.User.ID)
	if err != nil {
		log.Printf("account lookup failed: %v", err)
		fmt.Fprintln(c.out, "An error occurred. Check the log for details.")
		return
	}

	transfers, err := c.api.GetTransfersByAccountID(session.Token, account.AccountID)
	if err != nil {
		log.Printf("transfer history lookup failed: %v", err)
		fmt.Fprintln(c.out, "An error occurred. Check the log for details.")
		return
	}

	if len(transfers) == 0 {
		fmt.Fprintln(c.out, "No Transfer History")
		return
	}

	fmt.Fprintln(c.out, "-------------------------------------------")
	fmt.Fprintln(c.out, "Transfers")
	fmt.Fprintln(c.out, "ID\t\tFrom/To\t\tAmount")
	fmt.Fprintln(c.out, "-------------------------------------------")
	for _, t := range transfers {
		direction := "To:   " + c.counterpartyName(session.Token, t.AccountTo)
		if t.AccountFrom != account.AccountID {
			direction = "From: " + c.counterpartyName(session.Token, t.AccountFrom)
		}
		fmt.Fprintf(c.out, "%d\t%s\t%s\n", t.TransferID, direction, FormatCents(t.Amount))
	}

	transferID := c.promptInt("Please enter transfer ID to view details (0 to cancel): ")
	if transferID == 0 {
		return
	}
	c.viewTransferDetails(session, account.AccountID, transferID)
}

func (c *Console) viewTransferDetails(session *AuthResponse, accountID, transferID int) {
	transfer, err := c.api.GetTransfer(session.Token, transferID)
	if err != nil {
		log.Printf("transfer lookup failed: %v", err)
		fmt.Fprintln(c.out, "An error occurred. Check the log for details.")
		return
	}

	fmt.Fprintln(c.out, "--------------------------------------------")
	fmt.Fprintln(c.out, "Transfer Details")
	fmt.Fprintln(c.out, "--------------------------------------------")
	fmt.Fprintf(c.out, "Id: %d\n", transfer.TransferID)
	if transfer.AccountFrom != accountID {
		fmt.Fprintf(c.out, "From: %s\n", c.counterpartyName(session.Token, transfer.AccountFrom))
		fmt.Fprintln(c.out, "To: Myself")
		fmt.Fprintln(c.out, "Type: Received")
	} else {
		fmt.Fprintln(c.out, "From: Me")
		fmt.Fprintf(c.out, "To: %s\n", c.counterpartyName(session.Token, transfer.AccountTo))
		fmt.Fprintln(c.out, "Type: Send")
	}
	fmt.Fprintln(c.out, "Status: Approved")
	fmt.Fprintf(c.out, "Amount: %s\n", FormatCents(transfer.Amount))
}

func (c *Console) sendBucks(session *AuthResponse) {
	users, err := c.api.ListUsers(session.Token)
	if err != nil {
		log.Printf("user list failed: %v", err)
		fmt.Fprintln(c.out, "An error occurred. Check the log for details.")
		return
	}

	fmt.Fprintln(c.out, "-------------------------------------------")
	fmt.Fprintln(c.out, "Users")
	fmt.Fprintln(c.out, "ID\t\tName")
	fmt.Fprintln(c.out, "-------------------------------------------")
	for _, u := range users {
		if u.ID == session.User.ID {
			continue
		}
		fmt.Fprintf(c.out, "%d\t\t%s\n", u.ID, u.Username)
	}

	recipientID := c.promptInt("Enter ID of user you are sending to (0 to cancel): ")
	if recipientID == 0 {
		return
	}
	if recipientID == session.User.ID {
		fmt.Fprintln(c.out, "You cannot send money to yourself.")
		return
	}

	amount, err := ParseDollars(c.promptLine("Enter amount: "))
	if err != nil {
		fmt.Fprintln(c.out, "Invalid amount.")
		return
	}

	fromAccount, err := c.api.GetAccountByUserID(session.Token, session.User.ID)
	if err != nil {
		log.Printf("account lookup failed: %v", err)
		fmt.Fprintln(c.out, "An error occurred. Check the log for details.")
		return
	}
	toAccount, err := c.api.GetAccountByUserID(session.Token, recipientID)
	if err != nil {
		log.Printf("recipient account lookup failed: %v", err)
		fmt.Fprintln(c.out, "An error occurred. Check the log for details.")
		return
	}

	transfer := models.Transfer{
		TypeID:      models.TransferTypeSend,
		StatusID:    models.TransferStatusApproved,
		AccountFrom: fromAccount.AccountID,
		AccountTo:   toAccount.AccountID,
		Amount:      amount,
	}

	created, err := c.api.CreateTransfer(session.Token, transfer)
	if err != nil {
		log.Printf("transfer failed: %v", err)
		fmt.Fprintln(c.out, "An error occurred. Check the log for details.")
		return
	}
	fmt.Fprintf(c.out, "Transfer %d sent: %s to %s\n", created.TransferID, FormatCents(created.Amount), toAccount.Username)
}

func (c *Console) counterpartyName(token string, accountID int) string {
	account, err := c.api.GetAccountByAccountID(token, accountID)
	if err != nil {
		return fmt.Sprintf("account %d", accountID)
	}
	return account.Username
}

func (c *Console) promptCredentials() Credentials {
	return Credentials{
		Username: c.promptLine("Username: "),
		Password: c.promptLine("Password: "),
	}
}

func (c *Console) promptLine(prompt string) string {
	fmt.Fprint(c.out, prompt)
	line, _ := c.in.ReadString('\n')
	return strings.TrimSpace(line)
}

func (c *Console) promptInt(prompt string) int {
	n, err := strconv.Atoi(c.promptLine(prompt))
	if err != nil {
		return -1
	}
	return n
}

// FormatCents renders an amount in cents as a dollar string.
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
}

// ParseDollars parses a dollar amount like "25" or "25.50" into cents.
func ParseDollars(s string) (int64, error) {
	s = strings.TrimSpace(strings.TrimPrefix(s, "$"))
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}

	parts := strings.SplitN(s, ".", 2)
	dollars, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", s)
	}

	var cents int64
	if len(parts) == 2 {
		frac := parts[1]
		if len(frac) > 2 {
			return 0, fmt.Errorf("amount %q has more than two decimal places", s)
		}
		for len(frac) < 2 {
			frac += "0"
		}
		cents, err = strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid amount %q", s)
		}
	}

	if dollars < 0 {
		return 0, fmt.Errorf("amount cannot be negative")
	}
	return dollars*100 + cents, nil
}
