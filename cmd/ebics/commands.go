package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/sirosfoundation/go-ebics/pkg/ebics"
	"github.com/sirosfoundation/go-ebics/pkg/keys"
	"github.com/sirosfoundation/go-ebics/pkg/message"
	"github.com/sirosfoundation/go-ebics/pkg/orderdata"
	"github.com/sirosfoundation/go-ebics/pkg/response"
)

var hevCmd = &cobra.Command{
	Use:   "hev",
	Short: "List the protocol versions supported by the bank (HEV)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), cmd.ErrOrStderr(), func(s *session) error {
			resp, err := s.client.HostProbe(cmd.Context())
			if err != nil {
				return err
			}
			printResponse(cmd.OutOrStdout(), resp)
			for _, v := range resp.Versions {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s %s\n", v.Protocol, v.Version)
			}
			return nil
		})
	},
}

var iniCmd = &cobra.Command{
	Use:   "ini",
	Short: "Generate and submit the signature key (INI)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), cmd.ErrOrStderr(), func(s *session) error {
			resp, err := s.client.SubmitSignatureKey(cmd.Context(), time.Time{})
			return finishKeyManagement(cmd, s, resp, err)
		})
	},
}

var hiaCmd = &cobra.Command{
	Use:   "hia",
	Short: "Generate and submit the encryption and authentication keys (HIA)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), cmd.ErrOrStderr(), func(s *session) error {
			resp, err := s.client.SubmitEncryptionAuthKeys(cmd.Context(), time.Time{})
			return finishKeyManagement(cmd, s, resp, err)
		})
	},
}

var hpbCmd = &cobra.Command{
	Use:   "hpb",
	Short: "Retrieve and verify the bank keys (HPB)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), cmd.ErrOrStderr(), func(s *session) error {
			resp, err := s.client.RetrieveBankKeys(cmd.Context(), time.Time{})
			return finishKeyManagement(cmd, s, resp, err)
		})
	},
}

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Show the key ring state and key digests",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), cmd.ErrOrStderr(), func(s *session) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Key ring: %s\n", s.ringID)
			fmt.Fprintf(out, "State:    %s\n", s.ring.State())
			for _, role := range keys.Roles {
				if cert := s.ring.ParticipantCertificate(role); cert != nil {
					fmt.Fprintf(out, "User %-15s %s %X\n", role.String()+":", role.Version(), cert.Digest())
				}
			}
			for _, role := range []keys.Role{keys.RoleEncryption, keys.RoleAuthentication} {
				if cert := s.ring.BankCertificate(role); cert != nil {
					fmt.Fprintf(out, "Bank %-15s %s %X\n", role.String()+":", role.Version(), cert.Digest())
				}
			}
			return nil
		})
	},
}

var hpdCmd = &cobra.Command{
	Use:   "hpd",
	Short: "Download the bank parameters (HPD)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), cmd.ErrOrStderr(), func(s *session) error {
			resp, err := s.client.RetrieveSubscriberInfo(cmd.Context(), time.Time{})
			if err != nil {
				return err
			}
			printResponse(cmd.OutOrStdout(), resp)
			if !resp.OK() {
				return nil
			}
			params, err := orderdata.ParseHPDResponseOrderData(resp.OrderData())
			if err != nil {
				return err
			}
			printBankParameters(cmd.OutOrStdout(), params)
			return nil
		})
	},
}

var haaCmd = &cobra.Command{
	Use:   "haa",
	Short: "List the order types available for download (HAA)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), cmd.ErrOrStderr(), func(s *session) error {
			resp, err := s.client.ListOrders(cmd.Context(), time.Time{})
			if err != nil {
				return err
			}
			printResponse(cmd.OutOrStdout(), resp)
			if !resp.OK() {
				return nil
			}
			types, err := orderdata.ParseHAAResponseOrderData(resp.OrderData())
			if err != nil {
				return err
			}
			for _, t := range types {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", t)
			}
			return nil
		})
	},
}

var staCmd = statementCommand("sta", ebics.ProductMT940, "Download end of day statements (STA, MT940)")

var vmkCmd = statementCommand("vmk", ebics.ProductMT942, "Download interim transaction reports (VMK, MT942)")

func statementCommand(use string, product ebics.Product, short string) *cobra.Command {
	var rangeStart, rangeEnd string
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dateRange, err := parseDateRange(rangeStart, rangeEnd)
			if err != nil {
				return err
			}
			return withSession(cmd.Context(), cmd.ErrOrStderr(), func(s *session) error {
				resp, err := s.client.FetchStatement(cmd.Context(), product, time.Time{}, dateRange)
				if err != nil {
					return err
				}
				printResponse(cmd.OutOrStdout(), resp)
				for _, tx := range resp.Transactions() {
					cmd.OutOrStdout().Write(tx.OrderData)
					fmt.Fprintln(cmd.OutOrStdout())
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&rangeStart, "start", "", "First day of the range (YYYY-MM-DD)")
	cmd.Flags().StringVar(&rangeEnd, "end", "", "Last day of the range (YYYY-MM-DD)")
	return cmd
}

// finishKeyManagement prints the response and persists the ring when the step succeeded
func finishKeyManagement(cmd *cobra.Command, s *session, resp *response.Response, err error) error {
	if err != nil {
		return err
	}
	printResponse(cmd.OutOrStdout(), resp)
	if !resp.OK() {
		return nil
	}
	return s.save(cmd.Context())
}

// parseDateRange accepts both dates or neither
func parseDateRange(start, end string) (*message.DateRange, error) {
	if start == "" && end == "" {
		return nil, nil
	}
	if start == "" || end == "" {
		return nil, fmt.Errorf("--start and --end must be given together")
	}
	s, err := time.Parse(message.DateLayout, start)
	if err != nil {
		return nil, fmt.Errorf("invalid --start: %w", err)
	}
	e, err := time.Parse(message.DateLayout, end)
	if err != nil {
		return nil, fmt.Errorf("invalid --end: %w", err)
	}
	dateRange := &message.DateRange{Start: s, End: e}
	if err := dateRange.Validate(); err != nil {
		return nil, err
	}
	return dateRange, nil
}

func printResponse(w io.Writer, resp *response.Response) {
	fmt.Fprintf(w, "Return code: %s\n", resp.Code())
	if resp.ReportText != "" {
		fmt.Fprintf(w, "Report:      %s\n", resp.ReportText)
	}
	if resp.TransactionID != "" {
		fmt.Fprintf(w, "Transaction: %s\n", resp.TransactionID)
	}
}

func printBankParameters(w io.Writer, p *orderdata.BankParameters) {
	fmt.Fprintf(w, "Host:        %s\n", p.HostID)
	fmt.Fprintf(w, "Institute:   %s\n", p.Institute)
	for _, u := range p.URLs {
		fmt.Fprintf(w, "URL:         %s\n", u)
	}
	fmt.Fprintf(w, "Protocols:   %v\n", p.ProtocolVersions)
	fmt.Fprintf(w, "Signature:   %v\n", p.SignatureVersions)
	fmt.Fprintf(w, "Encryption:  %v\n", p.EncryptionVersions)
	fmt.Fprintf(w, "Auth:        %v\n", p.AuthenticationVersions)
}
