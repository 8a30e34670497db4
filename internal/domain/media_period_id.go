package domain

import "fmt"

// MediaPeriodID locates one media period instance, content or ad, within
// the current timeline. The zero value is not a valid id.
type MediaPeriodID struct {
	PeriodUID     string
	AdGroupIndex  int // IndexUnset for content
	AdIndexInGroup int
	// NextAdGroupIndex is the index of the next ad group that should
	// interrupt this content period, or IndexUnset. Only set for content ids.
	NextAdGroupIndex int
}

// NewContentID returns an id for content playback of the given period.
func NewContentID(periodUID string, nextAdGroupIndex int) MediaPeriodID {
	return MediaPeriodID{
		PeriodUID:        periodUID,
		AdGroupIndex:     IndexUnset,
		AdIndexInGroup:   IndexUnset,
		NextAdGroupIndex: nextAdGroupIndex,
	}
}

// NewAdID returns an id for one ad within an ad group of the given period.
func NewAdID(periodUID string, adGroupIndex, adIndexInGroup int) MediaPeriodID {
	return MediaPeriodID{
		PeriodUID:        periodUID,
		AdGroupIndex:     adGroupIndex,
		AdIndexInGroup:   adIndexInGroup,
		NextAdGroupIndex: IndexUnset,
	}
}

// IsAd reports whether the id refers to an ad rather than content.
func (id MediaPeriodID) IsAd() bool { return id.AdGroupIndex != IndexUnset }

// WithPeriodUID returns a copy of the id pointing at a different period.
func (id MediaPeriodID) WithPeriodUID(uid string) MediaPeriodID {
	id.PeriodUID = uid
	return id
}

func (id MediaPeriodID) String() string {
	if id.IsAd() {
		return fmt.Sprintf("%s[ad %d.%d]", id.PeriodUID, id.AdGroupIndex, id.AdIndexInGroup)
	}
	return fmt.Sprintf("%s[content next-ad %d]", id.PeriodUID, id.NextAdGroupIndex)
}
