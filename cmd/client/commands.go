package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/iyunix/go-telemed/internal/domain"
	"github.com/iyunix/go-telemed/internal/report"
	"github.com/iyunix/go-telemed/internal/services/ai"
)

func statusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show backend connectivity and the signed-in patient",
		RunE: func(cmd *cobra.Command, _ []string) error {
			mode := "offline (local storage)"
			if a.coord.IsConnected() {
				mode = "online"
			}
			fmt.Fprintf(a.out, "backend:  %s\n", a.cfg.APIURL)
			fmt.Fprintf(a.out, "mode:     %s\n", mode)
			fmt.Fprintf(a.out, "session:  %s\n", a.coord.SessionID())
			if user, ok := a.coord.CurrentUser(); ok {
				fmt.Fprintf(a.out, "patient:  %s (%s)\n", user.PatientID, user.Email)
			} else {
				fmt.Fprintln(a.out, "patient:  not signed in")
			}
			return nil
		},
	}
}

func patientCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "patient", Short: "Manage patient profiles"}

	var p domain.Patient
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a patient profile",
		RunE: func(cmd *cobra.Command, _ []string) error {
			created, err := a.coord.CreatePatient(cmd.Context(), p)
			if err != nil {
				return err
			}
			return report.WriteJSON(a.out, created)
		},
	}
	f := create.Flags()
	f.StringVar(&p.PatientID, "id", "", "patient id (generated when empty)")
	f.StringVar(&p.FirstName, "first-name", "", "first name")
	f.StringVar(&p.LastName, "last-name", "", "last name")
	f.StringVar(&p.Email, "email", "", "email address")
	f.StringVar(&p.Password, "password", "", "password")
	f.StringVar(&p.Phone, "phone", "", "phone number")
	f.StringVar(&p.DateOfBirth, "dob", "", "date of birth, YYYY-MM-DD")
	f.StringVar(&p.Gender, "gender", "", "gender")
	f.Float64Var(&p.Height, "height", 0, "height in cm")
	f.Float64Var(&p.Weight, "weight", 0, "weight in kg")
	f.StringVar(&p.BloodType, "blood-type", "", "blood type")
	f.StringVar(&p.Allergies, "allergies", "", "known allergies")
	f.StringVar(&p.Medications, "medications", "", "current medications")

	get := &cobra.Command{
		Use:   "get [patientId]",
		Short: "Show a patient profile",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := ""
			if len(args) == 1 {
				id = args[0]
			}
			p, err := a.coord.GetPatient(cmd.Context(), a.patientID(id))
			if err != nil {
				return err
			}
			return report.WriteJSON(a.out, p.Sanitized())
		},
	}

	var sets []string
	update := &cobra.Command{
		Use:   "update <patientId>",
		Short: "Update fields of a patient profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := parseAssignments(sets)
			if err != nil {
				return err
			}
			updated, err := a.coord.UpdatePatient(cmd.Context(), args[0], u)
			if err != nil {
				return err
			}
			return report.WriteJSON(a.out, updated.Sanitized())
		},
	}
	update.Flags().StringArrayVar(&sets, "set", nil, "field=value, repeatable; values are parsed as JSON when possible")
	_ = update.MarkFlagRequired("set")

	cmd.AddCommand(create, get, update)
	return cmd
}

// parseAssignments turns field=value pairs into a patient update.
func parseAssignments(pairs []string) (domain.PatientUpdate, error) {
	u := domain.PatientUpdate{}
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid assignment %q, want field=value", pair)
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		u[strings.TrimSpace(key)] = v
	}
	return u, nil
}

func loginCmd(a *app) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in as a patient",
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := a.coord.AuthenticateUser(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "signed in as %s %s (%s)\n", res.User.FirstName, res.User.LastName, res.User.PatientID)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&password, "password", "", "password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func logoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the signed-in patient",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.coord.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "signed out")
			return nil
		},
	}
}

func consultCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "consult", Short: "Ask the assistant and manage consultation history"}

	var (
		askFeature string
		patient    string
	)
	ask := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask the assistant and save the consultation",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			aiCfg := ai.DefaultConfig()
			aiCfg.APIKey = a.cfg.OpenAIAPIKey
			aiCfg.BaseURL = a.cfg.OpenAIBaseURL
			if a.cfg.OpenAIModel != "" {
				aiCfg.Model = a.cfg.OpenAIModel
			}
			if err := aiCfg.Validate(); err != nil {
				return err
			}
			consultant := ai.NewConsultant(ai.NewOpenAIProvider(aiCfg), a.coord, a.log)
			saved, err := consultant.Ask(cmd.Context(), ai.Request{
				PatientID:   a.patientID(patient),
				FeatureType: domain.FeatureType(askFeature),
				Prompt:      strings.Join(args, " "),
			}, func(delta string) error {
				_, err := fmt.Fprint(a.out, delta)
				return err
			})
			fmt.Fprintln(a.out)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.errOut, "saved consultation %s\n", saved.ConsultationID)
			return nil
		},
	}
	ask.Flags().StringVar(&askFeature, "feature", string(domain.FeatureSymptomAnalysis), "feature type")
	ask.Flags().StringVar(&patient, "patient", "", "patient id (defaults to the signed-in patient)")

	var (
		feature string
		limit   int
		search  string
		since   string
	)
	history := &cobra.Command{
		Use:   "history",
		Short: "List recent consultations, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			list, err := a.coord.GetConsultationHistory(cmd.Context(), a.patientID(patient), limit)
			if err != nil {
				return err
			}
			filter := report.Filter{FeatureType: domain.FeatureType(feature), Search: search}
			if since != "" {
				t, err := time.Parse(domain.DateOfBirthLayout, since)
				if err != nil {
					return fmt.Errorf("invalid --since %q, want YYYY-MM-DD", since)
				}
				filter.Since = t
			}
			list = filter.Apply(list)
			for _, c := range list {
				fmt.Fprintf(a.out, "%s  %-22s  %s  %s\n",
					c.Timestamp.Local().Format("2006-01-02 15:04"), c.FeatureType.DisplayName(), c.ConsultationID, preview(c.AIResponse, 60))
			}
			s := report.Summarize(list, time.Now())
			fmt.Fprintf(a.out, "%d consultations, %d this month\n", s.Total, s.ThisMonth)
			return nil
		},
	}
	hf := history.Flags()
	hf.StringVar(&patient, "patient", "", "patient id (defaults to the signed-in patient)")
	hf.IntVar(&limit, "limit", 10, "maximum consultations to fetch")
	hf.StringVar(&feature, "feature", "", "only this feature type")
	hf.StringVar(&search, "search", "", "only consultations mentioning this text")
	hf.StringVar(&since, "since", "", "only consultations on or after this date")

	del := &cobra.Command{
		Use:   "delete <consultationId>",
		Short: "Delete a consultation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.coord.DeleteConsultation(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "deleted %s\n", args[0])
			return nil
		},
	}

	var all bool
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove locally stored consultations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			target := a.patientID(patient)
			if all {
				target = ""
			}
			n, err := a.coord.ClearConsultationHistory(cmd.Context(), target)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "removed %d local consultations\n", n)
			return nil
		},
	}
	clearCmd.Flags().StringVar(&patient, "patient", "", "patient id (defaults to the signed-in patient)")
	clearCmd.Flags().BoolVar(&all, "all", false, "clear every patient's consultations")

	cmd.AddCommand(ask, history, del, clearCmd)
	return cmd
}

func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}

func recordsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "records", Short: "Manage medical records"}

	var (
		patient string
		rec     domain.MedicalRecord
		payload string
	)
	add := &cobra.Command{
		Use:   "add",
		Short: "Attach a medical record",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if payload != "" {
				if err := json.Unmarshal([]byte(payload), &rec.Payload); err != nil {
					return fmt.Errorf("invalid --payload: %w", err)
				}
			}
			rec.PatientID = a.patientID(patient)
			saved, err := a.coord.SaveMedicalRecord(cmd.Context(), rec)
			if err != nil {
				return err
			}
			return report.WriteJSON(a.out, saved)
		},
	}
	add.Flags().StringVar(&patient, "patient", "", "patient id (defaults to the signed-in patient)")
	add.Flags().StringVar(&rec.RecordType, "type", "", "record type, e.g. lab-result")
	add.Flags().StringVar(&rec.Title, "title", "", "title")
	add.Flags().StringVar(&payload, "payload", "", "JSON object with the record body")

	list := &cobra.Command{
		Use:   "list",
		Short: "List medical records, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			recs, err := a.coord.GetMedicalRecords(cmd.Context(), a.patientID(patient))
			if err != nil {
				return err
			}
			return report.WriteJSON(a.out, recs)
		},
	}
	list.Flags().StringVar(&patient, "patient", "", "patient id (defaults to the signed-in patient)")

	cmd.AddCommand(add, list)
	return cmd
}

func imagesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "images", Short: "Upload and list analysed images"}

	var patient, result string
	upload := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload an image with its analysis result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			saved, err := a.coord.SaveImageAnalysis(cmd.Context(), domain.ImageAnalysis{
				PatientID:      a.patientID(patient),
				FileName:       filepath.Base(args[0]),
				AnalysisResult: result,
				ImageData:      data,
			})
			if err != nil {
				return err
			}
			return report.WriteJSON(a.out, saved)
		},
	}
	upload.Flags().StringVar(&patient, "patient", "", "patient id (defaults to the signed-in patient)")
	upload.Flags().StringVar(&result, "result", "", "analysis result text")

	list := &cobra.Command{
		Use:   "list",
		Short: "List image analyses, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			imgs, err := a.coord.GetImageAnalyses(cmd.Context(), a.patientID(patient))
			if err != nil {
				return err
			}
			return report.WriteJSON(a.out, imgs)
		},
	}
	list.Flags().StringVar(&patient, "patient", "", "patient id (defaults to the signed-in patient)")

	cmd.AddCommand(upload, list)
	return cmd
}

func analyticsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "analytics", Short: "Record and query usage events"}

	var patient, data string
	track := &cobra.Command{
		Use:   "track <eventType>",
		Short: "Record a usage event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e := domain.AnalyticsEvent{PatientID: patient, EventType: args[0]}
			if data != "" {
				if err := json.Unmarshal([]byte(data), &e.EventData); err != nil {
					return fmt.Errorf("invalid --data: %w", err)
				}
			}
			saved, err := a.coord.SaveAnalytics(cmd.Context(), e)
			if err != nil {
				return err
			}
			return report.WriteJSON(a.out, saved)
		},
	}
	track.Flags().StringVar(&patient, "patient", "", "patient id")
	track.Flags().StringVar(&data, "data", "", "JSON object with event details")

	var (
		eventType  string
		start, end string
		limit      int
	)
	query := &cobra.Command{
		Use:   "query",
		Short: "Query usage events, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			f := domain.AnalyticsFilter{EventType: eventType, Limit: limit}
			var err error
			if f.Start, err = parseDay(start, false); err != nil {
				return err
			}
			if f.End, err = parseDay(end, true); err != nil {
				return err
			}
			events, err := a.coord.GetAnalytics(cmd.Context(), patient, f)
			if err != nil {
				return err
			}
			return report.WriteJSON(a.out, events)
		},
	}
	qf := query.Flags()
	qf.StringVar(&patient, "patient", "", "only this patient's events")
	qf.StringVar(&eventType, "type", "", "only this event type")
	qf.StringVar(&start, "start", "", "first day, YYYY-MM-DD")
	qf.StringVar(&end, "end", "", "last day, YYYY-MM-DD")
	qf.IntVar(&limit, "limit", 0, "maximum events")

	cmd.AddCommand(track, query)
	return cmd
}

// parseDay reads a YYYY-MM-DD flag. endOfDay extends the bound to the last
// instant of that day.
func parseDay(raw string, endOfDay bool) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(domain.DateOfBirthLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", raw)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

func statsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show dashboard totals",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.coord.GetDashboardStats(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "patients:        %d\n", s.TotalPatients)
			fmt.Fprintf(a.out, "consultations:   %d\n", s.TotalConsultations)
			fmt.Fprintf(a.out, "medical records: %d\n", s.TotalMedicalRecords)
			fmt.Fprintf(a.out, "image analyses:  %d\n", s.TotalImageAnalyses)
			for _, fc := range s.ConsultationsByFeature {
				fmt.Fprintf(a.out, "  %-24s %d\n", fc.FeatureType.DisplayName(), fc.Count)
			}
			return nil
		},
	}
}

func exportCmd(a *app) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write every local collection as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			exp, err := a.coord.ExportAll(cmd.Context())
			if err != nil {
				return err
			}
			return a.writeTo(out, func(w io.Writer) error { return report.WriteJSON(w, exp) })
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (stdout when empty)")

	var (
		patient string
		format  string
		limit   int
	)
	history := &cobra.Command{
		Use:   "history",
		Short: "Export consultation history as JSON or HTML",
		RunE: func(cmd *cobra.Command, _ []string) error {
			id := a.patientID(patient)
			list, err := a.coord.GetConsultationHistory(cmd.Context(), id, limit)
			if err != nil {
				return err
			}
			exp := report.NewHistoryExport(id, list, time.Now().UTC())
			switch format {
			case "json":
				return a.writeTo(out, func(w io.Writer) error { return report.WriteJSON(w, exp) })
			case "html":
				return a.writeTo(out, func(w io.Writer) error { return report.WriteHTML(w, exp) })
			default:
				return fmt.Errorf("unknown format %q, want json or html", format)
			}
		},
	}
	history.Flags().StringVar(&patient, "patient", "", "patient id (defaults to the signed-in patient)")
	history.Flags().StringVar(&format, "format", "json", "json or html")
	history.Flags().IntVar(&limit, "limit", 1000, "maximum consultations")
	history.Flags().StringVarP(&out, "out", "o", "", "output file (stdout when empty)")

	cmd.AddCommand(history)
	return cmd
}

// writeTo runs write against path, or against the command output when path
// is empty.
func (a *app) writeTo(path string, write func(io.Writer) error) error {
	if path == "" {
		return write(a.out)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func syncCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Push local records to the backend",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rep, err := a.coord.SyncWithCloud(cmd.Context())
			if errors.Is(err, domain.ErrOffline) {
				return fmt.Errorf("backend is offline; records stay local until the next sync")
			}
			for _, c := range domain.SyncCollections {
				res, ok := rep.Results[c]
				if !ok {
					continue
				}
				if res.Success {
					fmt.Fprintf(a.out, "%-16s ok (%d)\n", c, res.Upserted)
				} else {
					fmt.Fprintf(a.out, "%-16s failed: %s\n", c, res.Error)
				}
			}
			return err
		},
	}
}
