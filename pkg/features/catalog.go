package features

import (
	"fmt"
	"slices"
)

// Factory builds a fresh extractor.
type Factory func() Extractor

// Catalog maps extractor IDs to factories so configurations can name
// extractors instead of constructing them.
type Catalog struct {
	ids       []string
	factories map[string]Factory
}

// NewCatalog indexes factories by the ID of the extractor they build.
func NewCatalog(factories ...Factory) (*Catalog, error) {
	catalog := &Catalog{
		ids:       make([]string, 0, len(factories)),
		factories: make(map[string]Factory, len(factories)),
	}

	for _, factory := range factories {
		id := factory().Descriptor().ID
		if _, exists := catalog.factories[id]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateExtractor, id)
		}

		catalog.ids = append(catalog.ids, id)
		catalog.factories[id] = factory
	}

	return catalog, nil
}

// DefaultCatalog returns every built-in extractor.
func DefaultCatalog() *Catalog {
	catalog, err := NewCatalog(
		HasSTR, HasRegressionRange, HasCrashSignature,
		func() Extractor { return Keywords() },
		Severity, NumberOfBugDependencies, IsCoverityIssue, HasURL, HasW3CURL, HasGithubURL,
		Whiteboard, Patches, Landings, Product, Component, IsMozillian, BugReporter,
		DeltaRequestMerge, DeltaNightlyRequestMerge, BlockedBugsNumber, Priority, Version,
		TargetMilestone, HasCVEInAlias, CommentCount, CommentLength, ReporterExperience,
		EverAffected, AffectedThenUnaffected, NumWordsTitle, NumWordsComments,
		HasAttachment, HasImageAttachmentAtBugCreation, HasImageAttachment,
		CommitAdded, CommitDeleted, CommitTypes, CommitFilesModifiedNum,
		CommitAuthorExperience, CommitAuthorExperience90Days,
		CommitReviewerExperience, CommitReviewerExperience90Days,
		CommitNoOfBackouts, ComponentsTouched, ComponentsTouchedNum,
		Platform, OpSys, FiledVia, IsReporterADeveloper, HadSeverityEnhancement,
		TimeToFix, TimeToAssign, CCNumber, IsUplifted, Resolution, Status,
		CoupleCommonWhiteboardKeywords, IsSameProduct, IsSameComponent, IsSamePlatform,
		IsSameVersion, IsSameOS, IsSameTargetMilestone, IsFirstAffectedSame,
		CoupleDeltaCreationDate, CoupleCommonWordsSummary, CoupleCommonWordsComments,
		func() Extractor { return CoupleCommonKeywords() },
	)
	if err != nil {
		panic(err)
	}

	return catalog
}

// IDs returns the catalog IDs in registration order.
func (c *Catalog) IDs() []string {
	return slices.Clone(c.ids)
}

// Build instantiates the extractors named by ids, in order.
func (c *Catalog) Build(ids []string) ([]Extractor, error) {
	extractors := make([]Extractor, 0, len(ids))

	for _, id := range ids {
		factory, ok := c.factories[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownExtractor, id)
		}

		extractors = append(extractors, factory())
	}

	return extractors, nil
}

// Descriptors returns the descriptor of every catalog entry.
func (c *Catalog) Descriptors() []Descriptor {
	descriptors := make([]Descriptor, 0, len(c.ids))
	for _, id := range c.ids {
		descriptors = append(descriptors, c.factories[id]().Descriptor())
	}

	return descriptors
}
