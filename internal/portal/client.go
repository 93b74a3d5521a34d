// Package portal books attendance times on the employer self-service
// portal. The portal is a PRADO web application without a real API, so the
// client drives the HTML forms: it carries the PRADO_PAGESTATE token from
// response to response and submits the same callbacks the browser would.
package portal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"github.com/petr-muller/clocksync/internal/config"
)

const (
	loginPage = "Login"
	monthPage = "Personal.Monatserfassung"

	// formPrefix is the PRADO control path of the main content form.
	formPrefix = "ctl0$PortalLayoutContent$Main$"

	dayKeyFormat = "02.01.2006"

	requestTimeout = 30 * time.Second
	probeTimeout   = 5 * time.Second
)

// Client drives the portal's login and month-entry forms.
type Client struct {
	baseURL  string
	endpoint string
	company  string
	mandNr   string
	username string
	password string
	location *time.Location

	httpClient *http.Client
	pageState  string
}

// DayEntry is one row of the portal's month table.
type DayEntry struct {
	Date       string
	WorkStart  string
	WorkEnd    string
	PauseStart string
	PauseEnd   string
}

// NewClient creates a portal client. Cookies are kept across requests (the
// portal session rides on an SSID cookie) and redirects are not followed
// because the login answers with one.
func NewClient(cfg *config.Config) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	return &Client{
		baseURL:  strings.TrimSuffix(cfg.Portal.URL, "/"),
		endpoint: cfg.Portal.Endpoint,
		company:  cfg.Portal.Company,
		mandNr:   cfg.Portal.MandNr,
		username: cfg.Portal.Username,
		password: cfg.Portal.Password,
		location: cfg.Location,
		httpClient: &http.Client{
			Jar:     jar,
			Timeout: requestTimeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}, nil
}

// Upload books the default working day on the portal for the given date,
// unless the month table already carries an entry for it. The order number
// ends up on the booking so the portal can bill it.
func (c *Client) Upload(ctx context.Context, year, month, day int, order string) error {
	if err := c.probe(ctx); err != nil {
		return err
	}
	if err := c.login(ctx); err != nil {
		return err
	}

	entries, err := c.MonthTable(ctx, year, month)
	if err != nil {
		return err
	}

	date := time.Date(year, time.Month(month), day, 0, 0, 0, 0, c.location)
	key := date.Format(dayKeyFormat)
	if _, booked := entries[key]; booked {
		logrus.Infof("portal already has an entry for %s, nothing to do", key)
		return nil
	}

	return c.addTime(ctx, order, year, month, key)
}

// probe checks that the portal answers at all before the multi-step form
// flow starts, on a deadline much shorter than the form requests get.
func (c *Client) probe(ctx context.Context) error {
	params := url.Values{}
	params.Set("page", loginPage)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.pageURL(params), nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	probeClient := &http.Client{Timeout: probeTimeout}
	res, err := probeClient.Do(req)
	if err != nil {
		return fmt.Errorf("portal is not reachable: %w", err)
	}
	res.Body.Close()
	return nil
}

// login performs the two-step PRADO login: a GET to collect the page state
// and the session cookie, then the login form post.
func (c *Client) login(ctx context.Context) error {
	logrus.Info("logging in to the portal ...")

	loginParams := url.Values{}
	loginParams.Set("page", loginPage)
	loginParams.Set("login", "Personal")
	loginParams.Set("mandnr", c.mandNr)
	loginParams.Set("theme", c.company)

	if err := c.fetchPageState(ctx, loginParams); err != nil {
		return err
	}

	form := url.Values{}
	form.Set("PRADO_PAGESTATE", c.pageState)
	form.Set(formPrefix+"MandantSelect", c.mandNr)
	form.Set(formPrefix+"loginname", c.username)
	form.Set(formPrefix+"password", c.password)
	form.Set(formPrefix+"LoginButton", "")
	form.Set("PRADO_POSTBACK_TARGET", formPrefix+"LoginButton")

	res, err := c.postForm(ctx, loginParams, form, false)
	if err != nil {
		return fmt.Errorf("login request failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK && res.StatusCode != http.StatusFound {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("login failed with code %d: %q", res.StatusCode, string(body))
	}
	if !c.hasSessionCookie() {
		return fmt.Errorf("login did not establish a portal session")
	}

	logrus.Debug("portal login succeeded")
	return nil
}

// MonthTable loads the month-entry page and returns its rows keyed by date
// (dd.mm.yyyy). Rows without a recorded work start are left out, so presence
// in the map means the day is already booked.
func (c *Client) MonthTable(ctx context.Context, year, month int) (map[string]DayEntry, error) {
	logrus.Info("fetching recorded times from the portal ...")

	monthParams := url.Values{}
	monthParams.Set("page", monthPage)

	if err := c.fetchPageState(ctx, monthParams); err != nil {
		return nil, err
	}

	form := c.monthForm(year, month)
	form.Set("PRADO_CALLBACK_TARGET", formPrefix+"StartButton")

	res, err := c.postForm(ctx, monthParams, form, true)
	if err != nil {
		return nil, fmt.Errorf("month table request failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("month table request failed with code %d", res.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(res.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse month table page: %w", err)
	}
	c.updatePageState(doc)

	return parseMonthTable(doc), nil
}

// addTime submits the standard working day (08:00-17:00 with a one hour
// break at noon) for the given day.
func (c *Client) addTime(ctx context.Context, order string, year, month int, dayKey string) error {
	logrus.Infof("booking the standard working day for %s ...", dayKey)

	parameter, err := json.Marshal(map[string][]booking{
		dayKey: {standardBooking(order)},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal booking: %w", err)
	}

	monthParams := url.Values{}
	monthParams.Set("page", monthPage)

	form := c.monthForm(year, month)
	form.Set("PRADO_CALLBACK_PARAMETER", string(parameter))
	form.Set("PRADO_CALLBACK_TARGET", formPrefix+"SendData")

	res, err := c.postForm(ctx, monthParams, form, true)
	if err != nil {
		return fmt.Errorf("booking request failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("booking failed with code %d: %q", res.StatusCode, string(body))
	}

	logrus.Infof("... booked %s", dayKey)
	return nil
}

// monthForm builds the form fields every month-page callback carries.
func (c *Client) monthForm(year, month int) url.Values {
	form := url.Values{}
	form.Set("MAX_FILE_SIZE", "33554432")
	form.Set("PRADO_PAGESTATE", c.pageState)
	form.Set(formPrefix+"zeitraum", fmt.Sprintf("%d|%d", year, month))
	form.Set(formPrefix+"SignatureImage", "")
	form.Set(formPrefix+"TimesheetOverlay$TimesheetKunde", "")
	form.Set(formPrefix+"TimesheetOverlay$PrintWechsel", "0")
	return form
}

// fetchPageState GETs a portal page and remembers its PRADO_PAGESTATE.
func (c *Client) fetchPageState(ctx context.Context, params url.Values) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.pageURL(params), nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("portal request failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("portal page request failed with code %d", res.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(res.Body)
	if err != nil {
		return fmt.Errorf("failed to parse portal page: %w", err)
	}
	if !c.updatePageState(doc) {
		return fmt.Errorf("portal page carries no PRADO_PAGESTATE")
	}
	return nil
}

func (c *Client) postForm(ctx context.Context, params, form url.Values, callback bool) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.pageURL(params), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	req.Header.Set("Origin", c.baseURL)
	if callback {
		req.Header.Set("X-Requested-With", "XMLHttpRequest")
	}

	return c.httpClient.Do(req)
}

func (c *Client) pageURL(params url.Values) string {
	return fmt.Sprintf("%s%s?%s", c.baseURL, c.endpoint, params.Encode())
}

func (c *Client) hasSessionCookie() bool {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return false
	}
	for _, cookie := range c.httpClient.Jar.Cookies(base) {
		if cookie.Name == "SSID" {
			return true
		}
	}
	return false
}

// updatePageState pulls the PRADO_PAGESTATE hidden input out of a parsed
// page. Callback answers do not always carry one; the previous state stays
// valid then.
func (c *Client) updatePageState(doc *goquery.Document) bool {
	state, found := doc.Find("input#PRADO_PAGESTATE").Attr("value")
	if found && state != "" {
		c.pageState = state
		logrus.Debugf("PRADO_PAGESTATE: %d bytes", len(state))
		return true
	}
	return c.pageState != ""
}

// parseMonthTable walks the erfassung table. Each row is one day; the datum
// cell holds the date and the arbeit and pause cells carry the recorded
// times as input values.
func parseMonthTable(doc *goquery.Document) map[string]DayEntry {
	entries := map[string]DayEntry{}

	doc.Find("table.erfassung tbody tr").Each(func(_ int, row *goquery.Selection) {
		var entry DayEntry
		row.Find("td").Each(func(_ int, cell *goquery.Selection) {
			switch {
			case cell.HasClass("datum"):
				entry.Date = strings.TrimSpace(cell.Text())
			case cell.HasClass("arbeit"):
				entry.WorkStart, _ = cell.Find("input.von").Attr("value")
				entry.WorkEnd, _ = cell.Find("input.bis").Attr("value")
			case cell.HasClass("pause"):
				entry.PauseStart, _ = cell.Find("input.von").Attr("value")
				entry.PauseEnd, _ = cell.Find("input.bis").Attr("value")
			}
		})
		if entry.Date != "" && entry.WorkStart != "" {
			entries[entry.Date] = entry
		}
	})

	logrus.Debugf("portal month table has %d booked days", len(entries))
	return entries
}

type timePoint struct {
	Date  string `json:"date"`
	Datum string `json:"datum"`
}

type timeRange struct {
	Von timePoint `json:"von"`
	Bis timePoint `json:"bis"`
}

type booking struct {
	Arbeit    timeRange   `json:"arbeit"`
	Pause     []timeRange `json:"pause"`
	Art       string      `json:"art"`
	Nacht     bool        `json:"nacht"`
	Status    string      `json:"status"`
	Schicht   *string     `json:"schicht"`
	Leistung  *string     `json:"leistung"`
	Stunden   int         `json:"stunden"`
	Tage      string      `json:"tage"`
	Auftrag   string      `json:"auftrag"`
	Projekt   *string     `json:"projekt"`
	Bemerkung *string     `json:"bemerkung"`
}

// standardBooking is a full working day from 08:00 to 17:00 with a break
// from 12:00 to 13:00, as attendance type 1. The portal wants each time
// twice: as a UTC instant on an arbitrary reference day and as a plain
// local clock value.
func standardBooking(order string) booking {
	return booking{
		Arbeit: timeRange{
			Von: portalTime(8, 0),
			Bis: portalTime(17, 0),
		},
		Pause: []timeRange{{
			Von: portalTime(12, 0),
			Bis: portalTime(13, 0),
		}},
		Art:     "1",
		Status:  "0",
		Stunden: 8,
		Tage:    "1.0",
		Auftrag: order,
	}
}

func portalTime(hour, minute int) timePoint {
	return timePoint{
		Date:  fmt.Sprintf("1970-02-01T%02d:%02d:00.000Z", hour-1, minute),
		Datum: fmt.Sprintf("%02d:%02d:00", hour, minute),
	}
}
