// Package conf provides .INI-style configuration maps.
//
// A ConfMap is loaded from .conf files and/or from "Section.Option=Value"
// strings (typically command line arguments overriding file contents). Option
// values are held as string slices; the FetchOptionValue* accessors perform
// the desired conversion at fetch time.
package conf

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ConfMap is accessed via confMap[sectionName][optionName][optionValueIndex] or via the methods below
type ConfMapOption []string
type ConfMapSection map[string]ConfMapOption
type ConfMap map[string]ConfMapSection

// MakeConfMap returns a newly created empty ConfMap
func MakeConfMap() (confMap ConfMap) {
	confMap = make(ConfMap)
	return
}

// MakeConfMapFromFile returns a newly created ConfMap loaded with the contents of the confFilePath-specified file
func MakeConfMapFromFile(confFilePath string) (confMap ConfMap, err error) {
	confMap = MakeConfMap()
	err = confMap.UpdateFromFile(confFilePath)
	return
}

// MakeConfMapFromStrings returns a newly created ConfMap loaded with the contents specified in confStrings
func MakeConfMapFromStrings(confStrings []string) (confMap ConfMap, err error) {
	confMap = MakeConfMap()
	err = confMap.UpdateFromStrings(confStrings)
	return
}

// UpdateFromFile modifies a pre-existing ConfMap with updates as specified in the confFilePath-specified file
//
// A .conf file looks like:
//
//	[SectionName]                 ; a comment
//	OptionName0 =
//	OptionName1 = Value1
//	OptionName2 = Value2, Value3  # another comment
func (confMap ConfMap) UpdateFromFile(confFilePath string) (err error) {
	var (
		confFileBytes  []byte
		confFileLine   string
		confFileLines  []string
		currentSection string
		lineNumber     int
	)

	confFileBytes, err = os.ReadFile(confFilePath)
	if nil != err {
		err = fmt.Errorf("unable to read conf file %v: %v", confFilePath, err)
		return
	}

	confFileLines = strings.Split(string(confFileBytes), "\n")

	for lineNumber, confFileLine = range confFileLines {
		confFileLine = stripComment(confFileLine)
		confFileLine = strings.TrimSpace(confFileLine)

		if "" == confFileLine {
			continue
		}

		if strings.HasPrefix(confFileLine, "[") {
			if !strings.HasSuffix(confFileLine, "]") {
				err = fmt.Errorf("%v:%d: malformed section header: %v", confFilePath, lineNumber+1, confFileLine)
				return
			}
			currentSection = strings.TrimSpace(confFileLine[1 : len(confFileLine)-1])
			if "" == currentSection {
				err = fmt.Errorf("%v:%d: empty section name", confFilePath, lineNumber+1)
				return
			}
			_, ok := confMap[currentSection]
			if !ok {
				confMap[currentSection] = make(ConfMapSection)
			}
			continue
		}

		if "" == currentSection {
			err = fmt.Errorf("%v:%d: option outside of any [Section]: %v", confFilePath, lineNumber+1, confFileLine)
			return
		}

		optionName, optionValues, lineErr := parseOptionAssignment(confFileLine)
		if nil != lineErr {
			err = fmt.Errorf("%v:%d: %v", confFilePath, lineNumber+1, lineErr)
			return
		}

		confMap[currentSection][optionName] = optionValues
	}

	err = nil
	return
}

// UpdateFromString modifies a pre-existing ConfMap with an update specified as "Section.Option=Value0[,ValueN]*"
func (confMap ConfMap) UpdateFromString(confString string) (err error) {
	var (
		dotSplit []string
	)

	equalsSplit := strings.SplitN(confString, "=", 2)
	if 2 != len(equalsSplit) {
		err = fmt.Errorf("badly formed confString (no '='): %v", confString)
		return
	}

	dotSplit = strings.SplitN(strings.TrimSpace(equalsSplit[0]), ".", 2)
	if 2 != len(dotSplit) {
		err = fmt.Errorf("badly formed confString (no Section.Option): %v", confString)
		return
	}

	sectionName := strings.TrimSpace(dotSplit[0])
	optionName := strings.TrimSpace(dotSplit[1])
	if ("" == sectionName) || ("" == optionName) {
		err = fmt.Errorf("badly formed confString (empty Section or Option): %v", confString)
		return
	}

	section, ok := confMap[sectionName]
	if !ok {
		section = make(ConfMapSection)
		confMap[sectionName] = section
	}

	section[optionName] = splitOptionValues(strings.TrimSpace(equalsSplit[1]))

	err = nil
	return
}

// UpdateFromStrings modifies a pre-existing ConfMap with updates as specified in the confStrings slice
func (confMap ConfMap) UpdateFromStrings(confStrings []string) (err error) {
	for _, confString := range confStrings {
		err = confMap.UpdateFromString(confString)
		if nil != err {
			return
		}
	}
	err = nil
	return
}

// FetchOptionValueStringSlice returns the option value as a []string
func (confMap ConfMap) FetchOptionValueStringSlice(sectionName string, optionName string) (optionValue []string, err error) {
	var (
		section ConfMapSection
		ok      bool
	)

	section, ok = confMap[sectionName]
	if !ok {
		err = fmt.Errorf("[%v] missing", sectionName)
		return
	}

	optionValue, ok = section[optionName]
	if !ok {
		err = fmt.Errorf("[%v]%v missing", sectionName, optionName)
		return
	}

	err = nil
	return
}

// FetchOptionValueString returns the option value as a string (requiring it have precisely one value)
func (confMap ConfMap) FetchOptionValueString(sectionName string, optionName string) (optionValue string, err error) {
	var (
		optionValueSlice []string
	)

	optionValueSlice, err = confMap.FetchOptionValueStringSlice(sectionName, optionName)
	if nil != err {
		return
	}

	if 1 != len(optionValueSlice) {
		err = fmt.Errorf("[%v]%v must have precisely one value", sectionName, optionName)
		return
	}

	optionValue = optionValueSlice[0]

	err = nil
	return
}

// FetchOptionValueBool returns the option value as a bool
//
// Accepted values are {"true", "yes", "on"} & {"false", "no", "off"} (case insensitive)
func (confMap ConfMap) FetchOptionValueBool(sectionName string, optionName string) (optionValue bool, err error) {
	var (
		optionValueString string
	)

	optionValueString, err = confMap.FetchOptionValueString(sectionName, optionName)
	if nil != err {
		return
	}

	switch strings.ToLower(optionValueString) {
	case "true", "yes", "on":
		optionValue = true
	case "false", "no", "off":
		optionValue = false
	default:
		err = fmt.Errorf("[%v]%v not parseable as a bool: %v", sectionName, optionName, optionValueString)
		return
	}

	err = nil
	return
}

// FetchOptionValueUint16 returns the option value as a uint16
func (confMap ConfMap) FetchOptionValueUint16(sectionName string, optionName string) (optionValue uint16, err error) {
	var (
		optionValueUint64 uint64
	)

	optionValueUint64, err = confMap.fetchOptionValueUintWithBitSize(sectionName, optionName, 16)
	if nil != err {
		return
	}

	optionValue = uint16(optionValueUint64)

	err = nil
	return
}

// FetchOptionValueUint32 returns the option value as a uint32
func (confMap ConfMap) FetchOptionValueUint32(sectionName string, optionName string) (optionValue uint32, err error) {
	var (
		optionValueUint64 uint64
	)

	optionValueUint64, err = confMap.fetchOptionValueUintWithBitSize(sectionName, optionName, 32)
	if nil != err {
		return
	}

	optionValue = uint32(optionValueUint64)

	err = nil
	return
}

// FetchOptionValueUint64 returns the option value as a uint64
func (confMap ConfMap) FetchOptionValueUint64(sectionName string, optionName string) (optionValue uint64, err error) {
	optionValue, err = confMap.fetchOptionValueUintWithBitSize(sectionName, optionName, 64)
	return
}

// FetchOptionValueDuration returns the option value as a time.Duration
func (confMap ConfMap) FetchOptionValueDuration(sectionName string, optionName string) (optionValue time.Duration, err error) {
	var (
		optionValueString string
	)

	optionValueString, err = confMap.FetchOptionValueString(sectionName, optionName)
	if nil != err {
		return
	}

	optionValue, err = time.ParseDuration(optionValueString)
	if nil != err {
		err = fmt.Errorf("[%v]%v not parseable as a time.Duration: %v", sectionName, optionName, optionValueString)
		return
	}

	err = nil
	return
}

func (confMap ConfMap) fetchOptionValueUintWithBitSize(sectionName string, optionName string, bitSize int) (optionValue uint64, err error) {
	var (
		optionValueString string
	)

	optionValueString, err = confMap.FetchOptionValueString(sectionName, optionName)
	if nil != err {
		return
	}

	optionValue, err = strconv.ParseUint(optionValueString, 0, bitSize)
	if nil != err {
		err = fmt.Errorf("[%v]%v not parseable as a uint%d: %v", sectionName, optionName, bitSize, optionValueString)
		return
	}

	err = nil
	return
}

func stripComment(line string) (stripped string) {
	var (
		commentIndex int
	)

	stripped = line

	for _, commentLeadIn := range []string{"#", ";"} {
		commentIndex = strings.Index(stripped, commentLeadIn)
		if -1 != commentIndex {
			stripped = stripped[:commentIndex]
		}
	}

	return
}

func parseOptionAssignment(line string) (optionName string, optionValues ConfMapOption, err error) {
	var (
		assignIndex int
	)

	assignIndex = strings.IndexAny(line, "=:")
	if -1 == assignIndex {
		err = fmt.Errorf("malformed option line (no '=' or ':'): %v", line)
		return
	}

	optionName = strings.TrimSpace(line[:assignIndex])
	if "" == optionName {
		err = fmt.Errorf("malformed option line (empty option name): %v", line)
		return
	}

	optionValues = splitOptionValues(strings.TrimSpace(line[assignIndex+1:]))

	err = nil
	return
}

func splitOptionValues(valuesField string) (optionValues ConfMapOption) {
	optionValues = ConfMapOption{}

	if "" == valuesField {
		return
	}

	for _, commaField := range strings.Split(valuesField, ",") {
		for _, whitespaceField := range strings.Fields(commaField) {
			optionValues = append(optionValues, whitespaceField)
		}
	}

	return
}
