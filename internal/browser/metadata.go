package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/brensch/vmrmigrate/internal/vmr"
)

// Indexing form selectors.
const (
	selFormOpen        = `a.document-properties`
	selFormSave        = `#btnSaveProperties`
	selFileName        = `#txtFileName`
	selClassification  = `#ddlClassification`
	selDocSubType      = `#ddlDocumentSubType`
	selQuickRef        = `#txtQuickReference`
	selDocDate         = `#txtDocumentDate`
	selExpiryDate      = `#txtExpiryDate`
	selOffsiteLoc      = `#txtOffsiteLocation`
	selOnPremLoc       = `#txtOnPremisesLocation`
	selRemarks         = `#txtRemarks`
	selKeywords        = `#txtKeywords`
	selDocType         = `#ddlDocumentType`
	selDocSubTypeInt   = `#hdnDocumentSubType`
	selLifespan        = `#txtLifespan`
	selCategory        = `#ddlCategory`
)

// formFields pairs selectors with accessors so read and write walk the same
// list.
var formFields = []struct {
	sel string
	get func(m *vmr.Metadata) *string
}{
	{selFileName, func(m *vmr.Metadata) *string { return &m.FileName }},
	{selClassification, func(m *vmr.Metadata) *string { return &m.Classification }},
	{selDocSubType, func(m *vmr.Metadata) *string { return &m.DocumentSubType }},
	{selQuickRef, func(m *vmr.Metadata) *string { return &m.QuickReference }},
	{selDocDate, func(m *vmr.Metadata) *string { return &m.DocumentDate }},
	{selExpiryDate, func(m *vmr.Metadata) *string { return &m.ExpiryDate }},
	{selOffsiteLoc, func(m *vmr.Metadata) *string { return &m.OffsiteLocation }},
	{selOnPremLoc, func(m *vmr.Metadata) *string { return &m.OnPremisesLocation }},
	{selRemarks, func(m *vmr.Metadata) *string { return &m.Remarks }},
	{selKeywords, func(m *vmr.Metadata) *string { return &m.Keywords }},
	{selDocType, func(m *vmr.Metadata) *string { return &m.DocumentType }},
	{selDocSubTypeInt, func(m *vmr.Metadata) *string { return &m.DocumentSubTypeInternal }},
	{selLifespan, func(m *vmr.Metadata) *string { return &m.Lifespan }},
	{selCategory, func(m *vmr.Metadata) *string { return &m.Category }},
}

// FileMetadata opens the properties form for a file entry and reads every
// field. Fields missing from the form read as empty, not as errors.
func (s *Session) FileMetadata(ctx context.Context, e vmr.Entry) (vmr.Metadata, error) {
	var md vmr.Metadata
	if err := s.openForm(ctx, e); err != nil {
		return md, err
	}

	for _, f := range formFields {
		var val string
		err := s.run(ctx, chromedp.Value(f.sel, &val, chromedp.ByQuery, chromedp.AtLeast(0)))
		if err != nil {
			continue
		}
		*f.get(&md) = val
	}
	return md, nil
}

// FillMetadata writes the form for a file entry and saves it. Empty fields
// are left alone so partial metadata never blanks existing values.
func (s *Session) FillMetadata(ctx context.Context, e vmr.Entry, md vmr.Metadata) error {
	if err := s.openForm(ctx, e); err != nil {
		return err
	}

	var actions []chromedp.Action
	for _, f := range formFields {
		val := *f.get(&md)
		if val == "" {
			continue
		}
		actions = append(actions, chromedp.SetValue(f.sel, val, chromedp.ByQuery, chromedp.AtLeast(0)))
	}
	actions = append(actions,
		chromedp.Click(selFormSave, chromedp.ByQuery),
		chromedp.Sleep(time.Second),
	)

	if err := s.run(ctx, actions...); err != nil {
		return fmt.Errorf("saving metadata for %s: %w", e.Name, err)
	}
	return nil
}

func (s *Session) openForm(ctx context.Context, e vmr.Entry) error {
	if e.OnClick == "" {
		return fmt.Errorf("entry %s has no click handler", e.Name)
	}
	err := s.run(ctx,
		chromedp.Evaluate(e.OnClick, nil),
		chromedp.Sleep(time.Second),
		chromedp.Click(selFormOpen, chromedp.ByQuery),
		chromedp.WaitVisible(selFormSave, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("opening properties form for %s: %w", e.Name, err)
	}
	return nil
}
