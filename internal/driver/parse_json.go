package driver

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"netonboard/internal/domain"
)

// forEachRow visits NX-OS TABLE/ROW entries, which are an object when there
// is a single row and an array otherwise.
func forEachRow(rows gjson.Result, fn func(row gjson.Result)) {
	if rows.IsArray() {
		rows.ForEach(func(_, row gjson.Result) bool {
			fn(row)
			return true
		})
		return
	}
	if rows.IsObject() {
		fn(rows)
	}
}

func isNXOSVersionJSON(out string) bool {
	if !gjson.Valid(out) {
		return false
	}
	return gjson.Get(out, "nxos_ver_str").Exists() || gjson.Get(out, "kickstart_ver_str").Exists()
}

func isEOSVersionJSON(out string) bool {
	if !gjson.Valid(out) {
		return false
	}
	return strings.Contains(gjson.Get(out, "mfgName").String(), "Arista") ||
		(gjson.Get(out, "modelName").Exists() && gjson.Get(out, "internalVersion").Exists())
}

// parseNXOSVersion parses "show version | json"
func parseNXOSVersion(output string, f *domain.RawDeviceFacts) error {
	v := gjson.Parse(output)

	f.Vendor = "Cisco"
	f.Hostname = v.Get("host_name").String()
	f.SerialNumber = v.Get("proc_board_id").String()

	f.OSVersion = v.Get("nxos_ver_str").String()
	if f.OSVersion == "" {
		f.OSVersion = v.Get("kickstart_ver_str").String()
	}

	if chassis := v.Get("chassis_id").String(); chassis != "" {
		f.Extra["chassis_id"] = chassis
	}

	f.Uptime = time.Duration(v.Get("kern_uptm_days").Int())*24*time.Hour +
		time.Duration(v.Get("kern_uptm_hrs").Int())*time.Hour +
		time.Duration(v.Get("kern_uptm_mins").Int())*time.Minute +
		time.Duration(v.Get("kern_uptm_secs").Int())*time.Second

	if f.OSVersion == "" {
		return fmt.Errorf("no version in output")
	}
	return nil
}

// parseNXOSInventory takes the chassis product ID as model
func parseNXOSInventory(output string, f *domain.RawDeviceFacts) error {
	if !gjson.Valid(output) {
		return fmt.Errorf("invalid JSON")
	}

	found := false
	forEachRow(gjson.Get(output, "TABLE_inv.ROW_inv"), func(row gjson.Result) {
		if found || row.Get("name").String() != "Chassis" {
			return
		}
		found = true
		f.Model = strings.TrimSpace(row.Get("productid").String())
		if f.SerialNumber == "" {
			f.SerialNumber = strings.TrimSpace(row.Get("serialnum").String())
		}
	})

	if !found {
		return fmt.Errorf("no chassis row")
	}
	return nil
}

// parseNXOSInterfaces parses "show interface | json"
func parseNXOSInterfaces(output string, f *domain.RawDeviceFacts) error {
	if !gjson.Valid(output) {
		return fmt.Errorf("invalid JSON")
	}

	forEachRow(gjson.Get(output, "TABLE_interface.ROW_interface"), func(row gjson.Result) {
		iface := domain.RawInterface{
			Name:       row.Get("interface").String(),
			MACAddress: row.Get("eth_hw_addr").String(),
			Up:         row.Get("state").String() == "up",
			Enabled:    row.Get("admin_state").String() != "down",
		}
		if ip := row.Get("eth_ip_addr").String(); ip != "" {
			iface.Addresses = append(iface.Addresses, withPrefix(ip, row.Get("eth_ip_mask").String()))
		}
		f.Interfaces = append(f.Interfaces, iface)
	})

	return nil
}

// parseEOSVersion parses "show version | json"
func parseEOSVersion(output string, f *domain.RawDeviceFacts) error {
	v := gjson.Parse(output)

	f.Vendor = v.Get("mfgName").String()
	f.Model = v.Get("modelName").String()
	f.SerialNumber = v.Get("serialNumber").String()
	f.OSVersion = v.Get("version").String()
	f.Uptime = time.Duration(v.Get("uptime").Float() * float64(time.Second))

	if mac := v.Get("systemMacAddress").String(); mac != "" {
		f.Extra["system_mac"] = mac
	}

	if f.OSVersion == "" {
		return fmt.Errorf("no version in output")
	}
	return nil
}

// parseEOSHostname parses "show hostname | json"
func parseEOSHostname(output string, f *domain.RawDeviceFacts) error {
	host := gjson.Get(output, "hostname").String()
	if host == "" {
		return fmt.Errorf("no hostname")
	}
	f.Hostname = host
	if fqdn := gjson.Get(output, "fqdn").String(); fqdn != "" {
		f.Extra["fqdn"] = fqdn
	}
	return nil
}

// parseEOSInterfaces parses "show interfaces | json". Interfaces keep the
// order the device emitted them in.
func parseEOSInterfaces(output string, f *domain.RawDeviceFacts) error {
	if !gjson.Valid(output) {
		return fmt.Errorf("invalid JSON")
	}

	gjson.Get(output, "interfaces").ForEach(func(key, v gjson.Result) bool {
		name := v.Get("name").String()
		if name == "" {
			name = key.String()
		}

		iface := domain.RawInterface{
			Name:       name,
			MACAddress: v.Get("physicalAddress").String(),
			Enabled:    v.Get("interfaceStatus").String() != "disabled",
			Up:         v.Get("lineProtocolStatus").String() == "up",
		}

		v.Get("interfaceAddress").ForEach(func(_, a gjson.Result) bool {
			if ip := a.Get("primaryIp.address").String(); ip != "" && ip != "0.0.0.0" {
				iface.Addresses = append(iface.Addresses, withPrefix(ip, a.Get("primaryIp.maskLen").String()))
			}
			return true
		})

		f.Interfaces = append(f.Interfaces, iface)
		return true
	})

	return nil
}

func withPrefix(ip, mask string) string {
	if mask == "" {
		return ip
	}
	if _, err := strconv.Atoi(mask); err != nil {
		return ip
	}
	return ip + "/" + mask
}
