package services

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/nexconsult/precatorios/internal/models"
	"github.com/nexconsult/precatorios/internal/pipeline"
	"github.com/nexconsult/precatorios/internal/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Portal selectors
const (
	selectorRows         = "tbody tr[ng-repeat-start]"
	selectorToggle       = "td.toggle-preca"
	selectorDetailRows   = ".row-detail-container table.table-condensed tbody tr"
	selectorNextButton   = `a[ng-click="vm.ProximaPagina()"]`
	selectorOverlay      = ".block-ui-overlay"
	selectorEntityLink   = `a[href*="idEntidadeDevedora"]`
	selectorEntityCard   = `[ng-repeat*="entidade"], [ng-repeat*="ente"], .card, .panel`
	selectorListingTable = "table"
)

// pageInputSelectors are tried in order to find the "go to page" input
var pageInputSelectors = []string{
	`input[ng-model="vm.PaginaText"]`,
	"input.text-center.input-width-40-important",
	`.pagination input[type="text"]`,
}

var entityIDPattern = regexp.MustCompile(`idEntidadeDevedora=(\d+)`)

// ExtractorService turns portal HTML into rows and partitions
type ExtractorService struct {
	logger *logrus.Logger
}

// NewExtractorService creates a new extractor service
func NewExtractorService(logger *logrus.Logger) *ExtractorService {
	return &ExtractorService{
		logger: logger,
	}
}

// ParseListing extracts the rows of a chronological order page. Detail
// panels that are expanded in the HTML are attached to their rows.
func (e *ExtractorService) ParseListing(html string) (*pipeline.RenderResult, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	if doc.Find(selectorListingTable).Length() == 0 {
		return nil, fmt.Errorf("listing table not found")
	}

	result := &pipeline.RenderResult{
		HasNext: e.hasNext(doc),
	}

	doc.Find(selectorRows).Each(func(i int, s *goquery.Selection) {
		row := models.RawRow{}
		s.ChildrenFiltered("td").Each(func(_ int, td *goquery.Selection) {
			row.Cells = append(row.Cells, cleanText(td.Text()))
		})

		if detail := s.Next(); detail.Find("td[colspan]").Length() > 0 {
			row.Details = e.parseDetails(detail)
		}
		result.Rows = append(result.Rows, row)
	})

	e.logger.WithFields(logrus.Fields{
		"rows":     len(result.Rows),
		"has_next": result.HasNext,
	}).Debug("Listing page parsed")

	return result, nil
}

// parseDetails reads the label/value pairs of an expanded row
func (e *ExtractorService) parseDetails(detail *goquery.Selection) map[string]string {
	details := make(map[string]string)
	detail.Find("td[colspan] " + selectorDetailRows).Each(func(_ int, tr *goquery.Selection) {
		cells := tr.ChildrenFiltered("td")
		if cells.Length() < 2 {
			return
		}
		label := strings.TrimSuffix(cleanText(cells.Eq(0).Text()), ":")
		if label == "" {
			return
		}
		details[strings.TrimSpace(label)] = cleanText(cells.Eq(1).Text())
	})
	if len(details) == 0 {
		return nil
	}
	return details
}

// hasNext reports whether the pager's next control is enabled
func (e *ExtractorService) hasNext(doc *goquery.Document) bool {
	next := doc.Find(selectorNextButton).First()
	if next.Length() == 0 {
		return false
	}
	if _, disabled := next.Attr("disabled"); disabled {
		return false
	}
	if aria, _ := next.Attr("aria-disabled"); aria == "true" {
		return false
	}
	if next.HasClass("disabled") || next.Parent().HasClass("disabled") {
		return false
	}
	return true
}

// CurrentPage reads the page number shown in the pager input, or 0
func (e *ExtractorService) CurrentPage(html string) int {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return 0
	}
	for _, selector := range pageInputSelectors {
		if value, ok := doc.Find(selector).First().Attr("value"); ok {
			if page, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
				return page
			}
		}
	}
	return 0
}

// ParseEntityCards extracts the debtor entities listed on a regime page
func (e *ExtractorService) ParseEntityCards(html string, regime models.Regime) ([]models.Partition, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	seen := make(map[int]bool)
	var partitions []models.Partition

	doc.Find(selectorEntityLink).Each(func(i int, link *goquery.Selection) {
		href, _ := link.Attr("href")
		match := entityIDPattern.FindStringSubmatch(href)
		if match == nil {
			return
		}
		id, err := strconv.Atoi(match[1])
		if err != nil || seen[id] {
			return
		}

		card := link.Closest(selectorEntityCard)
		if card.Length() == 0 {
			card = link.Parent()
		}

		partition := e.parseCard(textLines(card), id, regime)
		seen[id] = true
		partitions = append(partitions, partition)
	})

	if len(partitions) == 0 {
		return nil, fmt.Errorf("no entity cards found")
	}

	e.logger.WithFields(logrus.Fields{
		"regime":   regime,
		"entities": len(partitions),
	}).Info("Entity cards parsed")

	return partitions, nil
}

// parseCard reads one entity card. The first line is the entity name; the
// counters follow their labels on the same line or the next one.
func (e *ExtractorService) parseCard(lines []string, id int, regime models.Regime) models.Partition {
	partition := models.Partition{
		ID:     id,
		Name:   fmt.Sprintf("Entidade %d", id),
		Regime: regime,
	}
	if len(lines) > 0 {
		partition.Name = lines[0]
	}

	valueAfter := func(i int, line string) string {
		if _, value, ok := strings.Cut(line, ":"); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
		if i+1 < len(lines) {
			return lines[i+1]
		}
		return ""
	}
	money := func(text string) decimal.Decimal {
		value, err := utils.ParseBRL(text)
		if err != nil {
			e.logger.WithError(err).WithField("entity_id", id).Debug("Unparseable card amount")
			return decimal.Zero
		}
		return value
	}

	for i, line := range lines {
		switch {
		case strings.Contains(line, "Precatórios Pagos:"):
			partition.PaidCount = utils.ParseCount(valueAfter(i, line))
		case strings.Contains(line, "Precatórios Pendentes:"):
			partition.ExpectedRecords = utils.ParseCount(valueAfter(i, line))
		case strings.Contains(line, "Valor Prioridade:"):
			partition.PriorityValue = money(valueAfter(i, line))
		case strings.Contains(line, "Valor RPV:"):
			partition.RPVValue = money(valueAfter(i, line))
		}
	}
	return partition
}

// textLines returns the non-empty text nodes under s in document order
func textLines(s *goquery.Selection) []string {
	var lines []string
	var walk func(*goquery.Selection)
	walk = func(sel *goquery.Selection) {
		sel.Contents().Each(func(_ int, c *goquery.Selection) {
			switch goquery.NodeName(c) {
			case "#text":
				if text := cleanText(c.Text()); text != "" {
					lines = append(lines, text)
				}
			case "script", "style":
			default:
				walk(c)
			}
		})
	}
	walk(s)
	return lines
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
