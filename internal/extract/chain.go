package extract

import (
	"bytes"

	"github.com/PuerkitoBio/goquery"

	"mkettler/groceryworker/logger"
	scraperrors "mkettler/groceryworker/pkg/errors"
)

// HTMLChain runs the extraction strategies over an HTML document in fixed
// priority order: page-state JSON, then linked data, then DOM scraping.
// The first non-empty result wins; an all-empty chain is reported as an
// extraction error so the caller can treat the page as product-free.
type HTMLChain struct {
	site       string
	pageState  *PageStateExtractor
	linkedData *LinkedDataExtractor
	dom        *DOMExtractor
	log        *logger.Logger
}

// NewHTMLChain builds the standard chain for one site
func NewHTMLChain(site string, selectors Selectors) *HTMLChain {
	return &HTMLChain{
		site:       site,
		pageState:  NewPageStateExtractor(site),
		linkedData: NewLinkedDataExtractor(site),
		dom:        NewDOMExtractor(site, selectors),
		log:        logger.ForScraper(site),
	}
}

// Extract parses the page once and runs the strategy chain
func (c *HTMLChain) Extract(body []byte) (Result, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return Result{}, scraperrors.NewParsing(c.site, "failed to parse HTML document", err)
	}

	if result := c.pageState.Extract(doc); !result.Empty() {
		return result, nil
	}
	if result := c.linkedData.Extract(doc); !result.Empty() {
		return result, nil
	}
	if result := c.dom.Extract(doc); !result.Empty() {
		return result, nil
	}

	c.log.Warn().Msg("Every extraction strategy came up empty for this page")
	return Result{}, nil
}
