package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/edvin/certgen/internal/model"
)

var (
	// ErrUnknownType is returned for a certificate type without a layout.
	ErrUnknownType = errors.New("unknown certificate type")
	// ErrIncomplete is returned when the request lacks an id or issue date.
	ErrIncomplete = errors.New("certificate id and issued date are required")
)

// Renderer turns a certificate request into a PDF document.
type Renderer interface {
	Render(ctx context.Context, req model.CertificateRequest) ([]byte, error)
}

// Page geometry in inches, measured from the top edge.
const (
	borderOuter   = 0.5
	borderInner   = 0.6
	yOrganization = 1.3
	yHeading      = 2.5
	yTitle        = 3.2
	yPresented    = 4.2
	yRecipient    = 4.8
	yPhrase       = 5.6
	yBody         = 6.4
	lineBody      = 0.25
	lineTitle     = 0.35
	footerIssued  = 2.0
	footerID      = 1.5
	footerVerify  = 1.2
	maxTitleLines = 2
)

type layout struct {
	heading   string
	presented string
	phrase    string
	listItems bool
}

var layouts = map[model.CertificateType]layout{
	model.CertTypeCollection: {
		heading:   "Certificate of Completion",
		presented: "This certifies that",
		phrase:    "has successfully completed all courses in this collection",
		listItems: true,
	},
	model.CertTypeCourse: {
		heading:   "Certificate of Achievement",
		presented: "This certifies that",
		phrase:    "has successfully completed this course",
	},
	model.CertTypeAchievement: {
		heading:   "Certificate of Achievement",
		presented: "Awarded to",
		phrase:    "in recognition of outstanding achievement",
	},
}

// PDF renders certificates with core PDF fonts. Output depends only on the
// request and the theme, so identical inputs produce identical bytes.
type PDF struct {
	theme Theme
}

func NewPDF(theme Theme) (*PDF, error) {
	if err := theme.Validate(); err != nil {
		return nil, err
	}
	return &PDF{theme: theme}, nil
}

func (p *PDF) Theme() Theme { return p.theme }

func (p *PDF) Render(ctx context.Context, req model.CertificateRequest) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l, ok := layouts[req.CertificateType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, req.CertificateType)
	}
	if req.CertificateID == "" || req.IssuedDate == nil {
		return nil, ErrIncomplete
	}
	issued := req.IssuedDate.UTC()

	pdf := fpdf.New("P", "in", p.theme.PageSize, "")
	pdf.SetCreationDate(issued)
	pdf.SetModificationDate(issued)
	pdf.SetCatalogSort(true)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetMargins(0, 0, 0)
	pdf.SetTitle(req.Title, true)
	pdf.SetSubject(l.heading, true)
	pdf.SetAuthor(p.theme.Organization, true)
	pdf.SetCreator("certgen", false)
	pdf.AddPage()

	d := &drawer{pdf: pdf, tr: pdf.UnicodeTranslatorFromDescriptor(""), theme: p.theme}
	d.width, d.height = pdf.GetPageSize()

	d.border()
	d.header(l, req)
	switch {
	case l.listItems && len(req.ItemsCompleted) > 0:
		d.items(req.ItemsCompleted)
	case req.Description != "":
		d.description(req.Description)
	}
	d.signature()
	d.footer(req.CertificateID, issued)

	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("layout certificate: %w", err)
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return buf.Bytes(), nil
}

type drawer struct {
	pdf           *fpdf.Fpdf
	tr            func(string) string
	theme         Theme
	width, height float64
}

func (d *drawer) color(c Color) {
	r, g, b := c.RGB()
	d.pdf.SetTextColor(r, g, b)
}

// centered draws one line of text vertically centered on y.
func (d *drawer) centered(y, lineHeight float64, text string) {
	d.pdf.SetXY(0, y-lineHeight/2)
	d.pdf.CellFormat(d.width, lineHeight, text, "", 0, "C", false, 0, "")
}

// wrapped splits text to the printable width and draws at most maxLines,
// ending with an ellipsis when truncated. It returns the y below the block.
func (d *drawer) wrapped(y, lineHeight float64, text string, maxLines int) float64 {
	lines := d.pdf.SplitLines([]byte(d.tr(text)), d.width-2)
	for i, line := range lines {
		if i == maxLines {
			break
		}
		s := string(line)
		if i == maxLines-1 && len(lines) > maxLines {
			s = strings.TrimRight(s, " ") + "..."
		}
		d.centered(y, lineHeight, s)
		y += lineHeight
	}
	return y
}

func (d *drawer) border() {
	r, g, b := d.theme.Colors.Border.RGB()
	d.pdf.SetDrawColor(r, g, b)
	d.pdf.SetLineWidth(3.0 / 72)
	d.pdf.Rect(borderOuter, borderOuter, d.width-2*borderOuter, d.height-2*borderOuter, "D")
	d.pdf.SetLineWidth(1.0 / 72)
	d.pdf.Rect(borderInner, borderInner, d.width-2*borderInner, d.height-2*borderInner, "D")
}

func (d *drawer) header(l layout, req model.CertificateRequest) {
	font := d.theme.Font

	if d.theme.Organization != "" {
		d.pdf.SetFont(font, "B", 18)
		d.color(d.theme.Colors.Border)
		d.centered(yOrganization, 0.3, d.tr(d.theme.Organization))
	}

	d.pdf.SetFont(font, "B", 32)
	d.color(d.theme.Colors.Heading)
	d.centered(yHeading, 0.5, d.tr(l.heading))

	d.pdf.SetFont(font, "", 20)
	d.color(d.theme.Colors.Body)
	d.wrapped(yTitle, lineTitle, req.Title, maxTitleLines)

	d.pdf.SetFont(font, "", 16)
	d.centered(yPresented, 0.3, d.tr(l.presented))

	recipient := req.UserName
	if strings.TrimSpace(recipient) == "" {
		recipient = req.UserEmail
	}
	if recipient != "" {
		d.pdf.SetFont(font, "B", 24)
		d.color(d.theme.Colors.Recipient)
		d.centered(yRecipient, 0.4, d.tr(recipient))
	}

	d.pdf.SetFont(font, "", 14)
	d.color(d.theme.Colors.Body)
	d.centered(yPhrase, 0.3, d.tr(l.phrase))
}

func (d *drawer) items(items []string) {
	y := yBody
	d.pdf.SetFont(d.theme.Font, "", 12)
	d.color(d.theme.Colors.Body)
	d.centered(y, lineBody, "Courses Completed:")
	y += lineBody + 0.05

	limit := d.theme.MaxItems
	d.pdf.SetFont(d.theme.Font, "", 11)
	for i, item := range items {
		if i == limit {
			break
		}
		d.centered(y, lineBody, d.tr("• "+item))
		y += lineBody
	}
	if len(items) > limit {
		d.centered(y, lineBody, fmt.Sprintf("... and %d more", len(items)-limit))
	}
}

func (d *drawer) description(text string) {
	d.pdf.SetFont(d.theme.Font, "", 12)
	d.color(d.theme.Colors.Body)
	d.wrapped(yBody, lineBody, text, d.theme.MaxDescriptionLines)
}

func (d *drawer) signature() {
	if d.theme.SignatureName == "" {
		return
	}
	y := d.height - footerIssued - 0.9
	r, g, b := d.theme.Colors.Body.RGB()
	d.pdf.SetDrawColor(r, g, b)
	d.pdf.SetLineWidth(0.5 / 72)
	d.pdf.Line(d.width/2-1.5, y, d.width/2+1.5, y)

	d.pdf.SetFont(d.theme.Font, "", 12)
	d.color(d.theme.Colors.Body)
	d.centered(y+0.2, 0.25, d.tr(d.theme.SignatureName))
	if d.theme.SignatureTitle != "" {
		d.pdf.SetFont(d.theme.Font, "I", 10)
		d.centered(y+0.4, 0.2, d.tr(d.theme.SignatureTitle))
	}
}

func (d *drawer) footer(id string, issued time.Time) {
	d.pdf.SetFont(d.theme.Font, "", 12)
	d.color(d.theme.Colors.Body)
	d.centered(d.height-footerIssued, 0.25, "Issued on "+issued.Format("January 02, 2006"))

	d.pdf.SetFont(d.theme.Font, "", 10)
	d.color(d.theme.Colors.Muted)
	d.centered(d.height-footerID, 0.2, d.tr("Certificate ID: "+id))
	if d.theme.VerifyURL != "" {
		d.centered(d.height-footerVerify, 0.2, d.tr("Verify at: "+VerificationURL(d.theme.VerifyURL, id)))
	}
}

// VerificationURL joins the verification base URL and a certificate id.
func VerificationURL(base, id string) string {
	return strings.TrimRight(base, "/") + "/" + id
}
