package sync

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/biter777/countries"
	"github.com/tidwall/gjson"
	"github.com/ttacon/libphonenumber"
)

func init() {

	// countryName expands an Alpha-2/Alpha-3 code or country name stored on
	// a CRM record into the full country name for the analytics profile.
	gjson.AddModifier("countryName", func(json, arg string) string {
		s := gjson.Parse(json).String()
		c := countries.ByName(s) // will match on Alpha-2 / Alpha-3 / Name
		if countries.Unknown == c {
			return ""
		}
		return fmt.Sprintf(`"%s"`, c.String()) // returns Country Name
	})

	// phone normalises a CRM phone property to +<country code><national
	// number>. The arg is the default country calling code used when the
	// stored number has no prefix of its own.
	gjson.AddModifier("phone", func(json, arg string) string {
		number := gjson.Parse(json).String()
		number = strings.Trim(number, `"`)
		if number == "" {
			return ""
		}
		i, err := strconv.Atoi(arg)
		if err != nil {
			return fmt.Sprintf(`"%s"`, number)
		}
		num, err := libphonenumber.Parse(number, libphonenumber.GetRegionCodeForCountryCode(i))
		if err != nil {
			return fmt.Sprintf(`"%s"`, number)
		}
		return fmt.Sprintf(`"+%d%s"`, num.GetCountryCode(), libphonenumber.GetNationalSignificantNumber(num))
	})

}
